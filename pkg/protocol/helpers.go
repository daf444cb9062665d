package protocol

import (
	"encoding/base64"
	"time"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/stats"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(width, height int, jpegData []byte, capturedAt time.Time) (*Message, error) {
	f := FrameData{
		Width:  width,
		Height: height,
		Format: "jpeg",
		Data:   base64.StdEncoding.EncodeToString(jpegData),
	}
	if !capturedAt.IsZero() {
		f.CapturedAt = capturedAt.UnixMilli()
	}
	return NewMessage(TypeFrame, f)
}

// NewObservationMessage creates an observation message
func NewObservationMessage(data ObservationData) (*Message, error) {
	return NewMessage(TypeObservation, data)
}

// NewResultMessage creates a result message
func NewResultMessage(sessionID string, r focus.Result) (*Message, error) {
	return NewMessage(TypeResult, ResultData{SessionID: sessionID, Result: r})
}

// NewStatsMessage creates a stats message
func NewStatsMessage(sessionID string, s stats.Stats) (*Message, error) {
	return NewMessage(TypeStats, StatsData{SessionID: sessionID, Stats: s})
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		SessionID: sessionID,
		Code:      code,
		Message:   message,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetResultData extracts a focus result from a message
func (m *Message) GetResultData() (*ResultData, error) {
	var data ResultData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetStatsData extracts session statistics from a message
func (m *Message) GetStatsData() (*StatsData, error) {
	var data StatsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error details from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
