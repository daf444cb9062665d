package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/geometry"
	"github.com/teslashibe/go-focus/pkg/stats"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{
			name:    "frame message",
			msgType: TypeFrame,
			data:    FrameData{Width: 640, Height: 480, Format: "jpeg"},
		},
		{
			name:    "error message",
			msgType: TypeError,
			data:    ErrorData{Code: "stale", Message: "too old"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
			if tt.data == nil && msg.Data != nil {
				t.Errorf("Data = %s, want nil", msg.Data)
			}
		})
	}
}

func TestParseMessage_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"not json", "{"},
		{"missing type", `{"ts": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMessage([]byte(tt.input))
			if !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("ParseMessage() error = %v, want ErrInvalidPayload", err)
			}
		})
	}
}

func TestFrameMessage(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}
	captured := time.UnixMilli(1_700_000_000_123)

	msg, err := NewFrameMessage(640, 480, jpegData, captured)
	if err != nil {
		t.Fatalf("NewFrameMessage() error = %v", err)
	}
	b, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(b)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	frameData, err := parsed.GetFrameData()
	if err != nil {
		t.Fatalf("GetFrameData() error = %v", err)
	}
	if frameData.Width != 640 || frameData.Format != "jpeg" {
		t.Errorf("frame = %+v", frameData)
	}
	if !frameData.CaptureTime().Equal(captured) {
		t.Errorf("CaptureTime() = %v, want %v", frameData.CaptureTime(), captured)
	}

	decoded, err := frameData.Decode()
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(decoded) != string(jpegData) {
		t.Errorf("Decode() = %v, want %v", decoded, jpegData)
	}
}

func TestFrameData_Decode(t *testing.T) {
	raw := []byte("jpeg bytes")
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"plain base64", enc, false},
		{"data url", "data:image/jpeg;base64," + enc, false},
		{"data url without comma", "data:image/jpeg;base64", true},
		{"empty", "", true},
		{"bad base64", "***", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FrameData{Data: tt.data}
			got, err := f.Decode()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Errorf("Decode() error = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if string(got) != string(raw) {
				t.Errorf("Decode() = %q, want %q", got, raw)
			}
		})
	}
}

func TestFrameData_CaptureTimeUnset(t *testing.T) {
	f := FrameData{}
	if !f.CaptureTime().IsZero() {
		t.Errorf("CaptureTime() = %v, want zero", f.CaptureTime())
	}
}

func TestResultMessage(t *testing.T) {
	dir := geometry.Direction{Horizontal: geometry.Left, Vertical: geometry.Up}
	r := focus.Result{
		Score:     72.5,
		State:     attention.Focused,
		Direction: &dir,
		Looking:   dir.String(),
		Message:   "Good focus. Keep it up!",
	}

	msg, err := NewResultMessage("s1", r)
	if err != nil {
		t.Fatalf("NewResultMessage() error = %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["session_id"] != "s1" || wire["state"] != "focused" || wire["looking"] != "left-up" {
		t.Errorf("wire = %v", wire)
	}

	got, err := msg.GetResultData()
	if err != nil {
		t.Fatalf("GetResultData() error = %v", err)
	}
	if got.SessionID != "s1" || got.Score != 72.5 || got.State != attention.Focused {
		t.Errorf("GetResultData() = %+v", got)
	}
	if got.Direction == nil || *got.Direction != dir {
		t.Errorf("Direction = %v, want %v", got.Direction, dir)
	}
}

func TestStatsMessage(t *testing.T) {
	s := stats.Stats{AverageScore: 55, FocusPercentage: 80, Samples: 10, TotalFocusedTime: 3 * time.Second}
	msg, err := NewStatsMessage("s2", s)
	if err != nil {
		t.Fatalf("NewStatsMessage() error = %v", err)
	}
	got, err := msg.GetStatsData()
	if err != nil {
		t.Fatalf("GetStatsData() error = %v", err)
	}
	if got.SessionID != "s2" || got.Samples != 10 || got.TotalFocusedTime != 3*time.Second {
		t.Errorf("GetStatsData() = %+v", got)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("s3", "rate_limited", "frame rate limit exceeded")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	got, err := msg.GetErrorData()
	if err != nil {
		t.Fatalf("GetErrorData() error = %v", err)
	}
	if got.Code != "rate_limited" || got.SessionID != "s3" {
		t.Errorf("GetErrorData() = %+v", got)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}
	pingData, err := pingMsg.GetPingData()
	if err != nil {
		t.Fatalf("GetPingData() error = %v", err)
	}
	if pingData.ID != "test-123" || pingData.Timestamp == 0 {
		t.Errorf("GetPingData() = %+v", pingData)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingData.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	pongData, err := pongMsg.GetPongData()
	if err != nil {
		t.Fatalf("GetPongData() error = %v", err)
	}
	if pongData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pongData.ID)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}

func TestParseData_WrongShape(t *testing.T) {
	msg := &Message{Type: TypeFrame, Data: json.RawMessage(`"not an object"`)}
	if _, err := msg.GetFrameData(); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("GetFrameData() error = %v, want ErrInvalidPayload", err)
	}
}

func TestObservationMessageRoundTrip(t *testing.T) {
	data := ObservationData{
		Face:        &geometry.Rect{X: 10, Y: 20, W: 100, H: 120},
		FrameWidth:  640,
		FrameHeight: 480,
		CapturedAt:  1_700_000_000_000,
		EyeBoxes:    []geometry.Rect{{X: 30, Y: 50, W: 20, H: 10}},
	}
	msg, err := NewObservationMessage(data)
	if err != nil {
		t.Fatalf("NewObservationMessage() error = %v", err)
	}
	got, err := msg.GetObservationData()
	if err != nil {
		t.Fatalf("GetObservationData() error = %v", err)
	}
	obs, err := got.ToObservation()
	if err != nil {
		t.Fatalf("ToObservation() error = %v", err)
	}
	if !obs.HasFace() || obs.HasLandmarks() || !obs.EyesFound() {
		t.Errorf("observation = %+v", obs)
	}
	if obs.Timestamp.UnixMilli() != data.CapturedAt {
		t.Errorf("Timestamp = %v", obs.Timestamp)
	}
}

func TestGetObservationData_NoData(t *testing.T) {
	msg := &Message{Type: TypeObservation}
	if _, err := msg.GetObservationData(); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("error = %v, want ErrInvalidPayload", err)
	}
}
