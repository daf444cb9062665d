package protocol

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
)

//go:embed observation.schema.json
var observationSchema string

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(observationSchema))
	})
	return schema, schemaErr
}

// ObservationSchema returns the embedded JSON schema for observations.
func ObservationSchema() string {
	return observationSchema
}

// FieldError is a single schema violation.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ValidationError lists every schema violation of a payload.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Description
	}
	return "observation does not match schema: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// ObservationData is what an upstream landmark detector reports for one
// frame. Landmarks are given either as a full point set in a known layout
// or as the named points directly. A payload with neither a face box nor
// landmarks means no face was detected.
type ObservationData struct {
	Face *geometry.Rect `json:"face,omitempty"`

	Layout    string          `json:"layout,omitempty"` // "dlib68", "mediapipe"
	Points    [][2]float64    `json:"points,omitempty"`
	Landmarks *face.Landmarks `json:"landmarks,omitempty"`

	Nose     *geometry.Point `json:"nose,omitempty"`
	EyeBoxes []geometry.Rect `json:"eye_boxes,omitempty"`

	FrameWidth  int    `json:"frame_width,omitempty"`
	FrameHeight int    `json:"frame_height,omitempty"`
	CapturedAt  int64  `json:"captured_at,omitempty"` // Unix milliseconds
	Source      string `json:"source,omitempty"`
}

// ValidateObservation checks raw JSON against the observation schema.
func ValidateObservation(raw []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("observation schema: %w", err)
	}
	result, err := s.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if result.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, e := range result.Errors() {
		verr.Fields = append(verr.Fields, FieldError{
			Field:       e.Field(),
			Description: e.Description(),
		})
	}
	return verr
}

// DecodeObservation validates and unmarshals an observation payload.
func DecodeObservation(raw []byte) (*ObservationData, error) {
	if err := ValidateObservation(raw); err != nil {
		return nil, err
	}
	var data ObservationData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return &data, nil
}

// GetObservationData extracts and validates observation data from a message.
func (m *Message) GetObservationData() (*ObservationData, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("%w: observation without data", ErrInvalidPayload)
	}
	return DecodeObservation(m.Data)
}

// CaptureTime returns the capture timestamp, zero if unset.
func (d *ObservationData) CaptureTime() time.Time {
	return unixMilli(d.CapturedAt)
}

// ToObservation converts the payload into an engine observation. The
// timestamp is zero when the client did not send one.
func (d *ObservationData) ToObservation() (face.Observation, error) {
	obs := face.Observation{
		Face:        d.Face,
		Landmarks:   d.Landmarks,
		Nose:        d.Nose,
		EyeBoxes:    d.EyeBoxes,
		FrameWidth:  d.FrameWidth,
		FrameHeight: d.FrameHeight,
		Timestamp:   unixMilli(d.CapturedAt),
		Source:      d.Source,
	}
	if len(d.Points) == 0 {
		return obs, nil
	}

	layout, err := face.ParseLayout(d.Layout)
	if err != nil {
		return face.Observation{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	pts := make([]geometry.Point, len(d.Points))
	for i, p := range d.Points {
		pts[i] = geometry.Pt(p[0], p[1])
	}
	lm, err := face.FromLayout(layout, pts)
	if err != nil {
		return face.Observation{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	obs.Landmarks = lm
	return obs, nil
}
