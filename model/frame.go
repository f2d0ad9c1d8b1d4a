package model

import "encoding/json"

// Frame types carried over the WebSocket transport.
const (
	FrameRequest  = "req"
	FrameResponse = "res"
	FrameEvent    = "event"
)

// Frame is a message between the UI layer and the backend over a WebSocket.
// Requests carry Method and Params, responses echo ID and carry OK with
// either Payload or Error, events carry Method and Payload.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}
