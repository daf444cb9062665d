package geometry

// Eye is a six-point eye contour in dlib order:
//
//	0: outer corner, 1-2: upper lid, 3: inner corner, 4-5: lower lid
//
// Points 1/5 and 2/4 face each other vertically.
type Eye [6]Point

// Width is the corner-to-corner distance.
func (e Eye) Width() float64 {
	return e[0].Dist(e[3])
}

// Centroid is the mean of all six points.
func (e Eye) Centroid() Point {
	var c Point
	for _, p := range e {
		c.X += p.X
		c.Y += p.Y
	}
	c.X /= 6
	c.Y /= 6
	return c
}

// CornerMid is the midpoint of the two horizontal corners.
func (e Eye) CornerMid() Point {
	return e[0].Mid(e[3])
}

// Top is the midpoint of the upper lid points.
func (e Eye) Top() Point {
	return e[1].Mid(e[2])
}

// Bottom is the midpoint of the lower lid points.
func (e Eye) Bottom() Point {
	return e[4].Mid(e[5])
}

// Bounds returns the bounding box of the contour.
func (e Eye) Bounds() Rect {
	return Bounds(e[:]...)
}

func (e Eye) finite() bool {
	for _, p := range e {
		if !p.Finite() {
			return false
		}
	}
	return true
}

// EyeAspectRatio computes (|p1-p5| + |p2-p4|) / (2|p0-p3|).
// Larger values mean a more open eye; about 0.2 separates closed from open.
// Degenerate contours (zero width or non-finite points) yield 0.
func EyeAspectRatio(e Eye) float64 {
	if !e.finite() {
		return 0
	}
	w := e.Width()
	if w == 0 {
		return 0
	}
	return (e[1].Dist(e[5]) + e[2].Dist(e[4])) / (2 * w)
}

// MeanEAR averages the aspect ratio of both eyes.
func MeanEAR(left, right Eye) float64 {
	return (EyeAspectRatio(left) + EyeAspectRatio(right)) / 2
}
