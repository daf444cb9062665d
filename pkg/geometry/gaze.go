package geometry

import (
	"fmt"
	"math"
)

// DefaultGazeThreshold is the minimum averaged deviation before an axis
// gets a directional label.
const DefaultGazeThreshold = 0.2

// Horizontal is the horizontal gaze axis label.
type Horizontal int

const (
	HorizontalCenter Horizontal = iota
	Left
	Right
)

func (h Horizontal) String() string {
	switch h {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "center"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (h Horizontal) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Horizontal) UnmarshalText(b []byte) error {
	switch string(b) {
	case "center", "":
		*h = HorizontalCenter
	case "left":
		*h = Left
	case "right":
		*h = Right
	default:
		return fmt.Errorf("unknown horizontal gaze %q", b)
	}
	return nil
}

// Vertical is the vertical gaze axis label.
type Vertical int

const (
	VerticalCenter Vertical = iota
	Up
	Down
)

func (v Vertical) String() string {
	switch v {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "center"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Vertical) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Vertical) UnmarshalText(b []byte) error {
	switch string(b) {
	case "center", "":
		*v = VerticalCenter
	case "up":
		*v = Up
	case "down":
		*v = Down
	default:
		return fmt.Errorf("unknown vertical gaze %q", b)
	}
	return nil
}

// Direction is an independent two-axis gaze classification.
type Direction struct {
	Horizontal Horizontal `json:"horizontal"`
	Vertical   Vertical   `json:"vertical"`
}

// Centered reports whether neither axis carries a directional label.
func (d Direction) Centered() bool {
	return d.Horizontal == HorizontalCenter && d.Vertical == VerticalCenter
}

// String renders the pair for display: "center", "left", "down", "right-up".
func (d Direction) String() string {
	switch {
	case d.Centered():
		return "center"
	case d.Vertical == VerticalCenter:
		return d.Horizontal.String()
	case d.Horizontal == HorizontalCenter:
		return d.Vertical.String()
	default:
		return d.Horizontal.String() + "-" + d.Vertical.String()
	}
}

// Gaze holds averaged deviation magnitudes for both eyes and the derived
// direction. Deviations are normalised by eye size: usually 0-1 but
// unbounded above.
type Gaze struct {
	Horizontal float64   `json:"horizontal"`
	Vertical   float64   `json:"vertical"`
	Direction  Direction `json:"direction"`
}

type eyeDeviation struct {
	h, v         float64
	hSign, vSign int
}

func deviationOf(e Eye) eyeDeviation {
	if !e.finite() {
		return eyeDeviation{}
	}
	c := e.Centroid()
	ideal := e.CornerMid()
	top, bottom := e.Top(), e.Bottom()
	vmid := top.Mid(bottom)

	// Each axis only sees its own component of the offset.
	var d eyeDeviation
	if w := e.Width(); w > 0 {
		d.h = math.Abs(c.X-ideal.X) / w
	}
	if ht := top.Dist(bottom); ht > 0 {
		d.v = math.Abs(c.Y-vmid.Y) / ht
	}
	d.hSign = sign(c.X - ideal.X)
	d.vSign = sign(c.Y - vmid.Y)
	return d
}

// GazeOf estimates gaze from both eye contours. An axis is labelled only
// when the averaged deviation exceeds threshold and both eyes are offset
// in the same direction. Image coordinates apply: +x is right, +y is down.
func GazeOf(left, right Eye, threshold float64) Gaze {
	l, r := deviationOf(left), deviationOf(right)
	g := Gaze{
		Horizontal: (l.h + r.h) / 2,
		Vertical:   (l.v + r.v) / 2,
	}

	if g.Horizontal > threshold && l.hSign == r.hSign {
		switch l.hSign {
		case 1:
			g.Direction.Horizontal = Right
		case -1:
			g.Direction.Horizontal = Left
		}
	}
	if g.Vertical > threshold && l.vSign == r.vSign {
		switch l.vSign {
		case 1:
			g.Direction.Vertical = Down
		case -1:
			g.Direction.Vertical = Up
		}
	}
	return g
}

// GazeQuality maps deviations to [0,1]: 1 - min(1, 2h + 1.5v), boosted by
// 1.2 (capped at 1) when the gaze is centered.
func GazeQuality(g Gaze) float64 {
	if !finite(g.Horizontal) || !finite(g.Vertical) {
		return 0
	}
	q := 1 - math.Min(1, g.Horizontal*2+g.Vertical*1.5)
	if g.Direction.Centered() {
		q = math.Min(1, q*1.2)
	}
	return Clamp(q, 0, 1)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
