package geometry

import "math"

// PositionScore rates how centered a face is. cx and cy are the face center
// as fractions of the frame size; vertical offset is penalised more.
func PositionScore(cx, cy float64) float64 {
	if !finite(cx) || !finite(cy) {
		return 0
	}
	dx := math.Abs(cx - 0.5)
	dy := math.Abs(cy - 0.5)
	return math.Max(0, 1-(dx*1.5+dy*2.0))
}

// SizeScore rates the face distance from its share of the frame area:
// 1.0 between 5% and 60%, falling off when too far or too close.
func SizeScore(area float64) float64 {
	switch {
	case !finite(area) || area <= 0:
		return 0
	case area < 0.05:
		return math.Max(0, area*10)
	case area > 0.6:
		return math.Max(0, 1-(area-0.6)*5)
	default:
		return 1
	}
}

// Framing holds diagnostic framing scores for one face.
type Framing struct {
	Position float64 `json:"position"`
	Size     float64 `json:"size"`
}

// FramingOf scores a face box within a frame of the given size. A frame
// without dimensions yields zero scores.
func FramingOf(face Rect, frameW, frameH int) Framing {
	if frameW <= 0 || frameH <= 0 || face.Empty() {
		return Framing{}
	}
	c := face.Center()
	fw, fh := float64(frameW), float64(frameH)
	return Framing{
		Position: PositionScore(c.X/fw, c.Y/fh),
		Size:     SizeScore(face.Area() / (fw * fh)),
	}
}
