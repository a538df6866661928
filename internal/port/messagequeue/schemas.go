package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// UpdatePayload is the schema for messages on the updates subject.
// Origin identifies the publishing process so it can skip its own echoes.
type UpdatePayload struct {
	Origin string `json:"origin"`
	Code   string `json:"code"`
}

// DecodeUpdate parses and validates an UpdatePayload.
func DecodeUpdate(data []byte) (UpdatePayload, error) {
	var p UpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode update payload: %w", err)
	}
	if p.Origin == "" {
		return p, errors.New("update payload: origin is required")
	}
	return p, nil
}
