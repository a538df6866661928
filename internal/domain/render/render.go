// Package render defines the value types exchanged by the render pipeline.
package render

// CompileRequest carries the raw circuit markup submitted by a client.
// Code is embedded verbatim into the document template.
type CompileRequest struct {
	Code string `json:"code"`
}

// Result is the successful outcome of a render. Image holds PNG bytes; PDF is
// only populated when the service is configured to return the intermediate
// document as well. Byte slices encode as base64 in JSON.
type Result struct {
	Image []byte `json:"image"`
	PDF   []byte `json:"pdf,omitempty"`
}

// UpdateEvent is broadcast to live-update subscribers after a successful render.
type UpdateEvent struct {
	Code string `json:"code"`
}
