// Package protocol defines the WebSocket and HTTP message types exchanged
// between focus clients (frame producers, monitors) and the focus service.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/stats"
)

// ErrInvalidPayload is returned for messages or payloads that cannot be used.
var ErrInvalidPayload = errors.New("invalid payload")

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Client → Service messages
	TypeObservation MessageType = "observation" // Detector output for one frame
	TypeFrame       MessageType = "frame"       // Encoded video frame

	// Service → Client messages
	TypeResult MessageType = "result" // Focus result for one frame
	TypeStats  MessageType = "stats"  // Session statistics
	TypeError  MessageType = "error"  // Rejected message or frame

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrInvalidPayload, m.Type, err)
	}
	return nil
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse message: %w", ErrInvalidPayload, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: message type missing", ErrInvalidPayload)
	}
	return &msg, nil
}

// =============================================================================
// Client → Service Message Types
// =============================================================================

// FrameData contains an encoded video frame
type FrameData struct {
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Format     string `json:"format,omitempty"` // "jpeg"
	Data       string `json:"data"`             // base64, optionally a data URL
	CapturedAt int64  `json:"captured_at,omitempty"`
}

// Decode returns the raw image bytes. A "data:image/...;base64," prefix
// is accepted.
func (f *FrameData) Decode() ([]byte, error) {
	s := f.Data
	if strings.HasPrefix(s, "data:") {
		i := strings.IndexByte(s, ',')
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidPayload)
		}
		s = s[i+1:]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty frame", ErrInvalidPayload)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: frame data: %w", ErrInvalidPayload, err)
	}
	return b, nil
}

// CaptureTime returns the capture timestamp, zero if unset.
func (f *FrameData) CaptureTime() time.Time {
	return unixMilli(f.CapturedAt)
}

// =============================================================================
// Service → Client Message Types
// =============================================================================

// ResultData is one processed frame.
type ResultData struct {
	SessionID string `json:"session_id"`
	focus.Result
}

// StatsData is a session statistics snapshot.
type StatsData struct {
	SessionID string `json:"session_id"`
	stats.Stats
}

// ErrorData describes a rejected message or frame.
type ErrorData struct {
	SessionID string `json:"session_id,omitempty"`
	Code      string `json:"code"` // "invalid_payload", "stale", "rate_limited", ...
	Message   string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

func unixMilli(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
