package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrMalformedEnvelope = errors.New("malformed message envelope")
	ErrUnknownEvent      = errors.New("unknown event")
)

// ClientMessage is the inbound wire envelope.
type ClientMessage struct {
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// ServerMessage is the outbound wire envelope.
type ServerMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// ParseEnvelope peeks the envelope fields without decoding the payload.
func ParseEnvelope(msg []byte) (ClientMessage, error) {
	if !gjson.ValidBytes(msg) {
		return ClientMessage{}, ErrMalformedEnvelope
	}
	root := gjson.ParseBytes(msg)
	if !root.IsObject() {
		return ClientMessage{}, ErrMalformedEnvelope
	}
	event := root.Get("event")
	if event.Type != gjson.String || event.Str == "" {
		return ClientMessage{}, fmt.Errorf("%w: missing event name", ErrMalformedEnvelope)
	}
	cm := ClientMessage{
		Event:     event.Str,
		RequestID: root.Get("requestId").String(),
	}
	if payload := root.Get("payload"); payload.Exists() {
		cm.Payload = json.RawMessage(payload.Raw)
	}
	return cm, nil
}

// Encode renders an outbound event into its wire form.
func Encode(evt Outbound) ([]byte, error) {
	msg, err := json.Marshal(ServerMessage{Event: evt.EventName(), Payload: evt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode '%s': %w", evt.EventName(), err)
	}
	return msg, nil
}
