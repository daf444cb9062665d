// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import "encoding/json"

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte

	// SessionID is the focus session the message belongs to. Clients
	// subscribed to one session only receive its messages.
	SessionID string
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(sessionID string, data []byte) Message {
	return Message{Type: JSONMessage, Data: data, SessionID: sessionID}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(sessionID string, data []byte) Message {
	return Message{Type: BinaryMessage, Data: data, SessionID: sessionID}
}

// EncodeJSON marshals v into a JSON message.
func EncodeJSON(sessionID string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(sessionID, data), nil
}
