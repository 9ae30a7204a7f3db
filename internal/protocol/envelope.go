// Package protocol defines the JSON wire envelope and request/response/
// broadcast payloads of the WebSocket control plane (§6.1). It has no
// adapter or actor dependencies; internal/session is its only consumer.
package protocol

import "encoding/json"

// Envelope is the outermost frame every WebSocket text message carries.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Broadcast json.RawMessage `json:"broadcast,omitempty"`
	Message   string          `json:"message,omitempty"`
}

const (
	EnvelopeRequest   = "request"
	EnvelopeResponse  = "response"
	EnvelopeBroadcast = "broadcast"
	EnvelopeError     = "error"
)

// EncodeRequest wraps a Request into a request envelope frame.
func EncodeRequest(id string, req Request) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: EnvelopeRequest, ID: id, Request: raw})
}

// EncodeResponse wraps a Response into a response envelope frame.
func EncodeResponse(id string, resp Response) ([]byte, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: EnvelopeResponse, ID: id, Response: raw})
}

// EncodeBroadcast wraps a Broadcast into a broadcast envelope frame.
func EncodeBroadcast(b Broadcast) ([]byte, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: EnvelopeBroadcast, Broadcast: raw})
}

// EncodeMalformedError wraps a plain error message into an error envelope,
// used when an inbound frame can't even be parsed enough to discover an id
// (§7: "Malformed JSON frames produce a type:"error" envelope without an
// id").
func EncodeMalformedError(message string) ([]byte, error) {
	return json.Marshal(Envelope{Type: EnvelopeError, Message: message})
}

// DecodeRequest parses a request envelope's inner payload.
func DecodeRequest(env Envelope) (Request, error) {
	var req Request
	if err := json.Unmarshal(env.Request, &req); err != nil {
		return Request{}, err
	}
	return req, nil
}
