package messagequeue

import "testing"

func TestDecodeUpdate(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    UpdatePayload
		wantErr bool
	}{
		{"valid", `{"origin":"a","code":"R1"}`, UpdatePayload{Origin: "a", Code: "R1"}, false},
		{"empty code", `{"origin":"a","code":""}`, UpdatePayload{Origin: "a"}, false},
		{"missing origin", `{"code":"R1"}`, UpdatePayload{}, true},
		{"invalid json", `{"origin":`, UpdatePayload{}, true},
		{"wrong type", `{"origin":"a","code":1}`, UpdatePayload{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeUpdate([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
