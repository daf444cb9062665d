package geometry

import (
	"image"
	"math"
)

// Attention density defaults.
const (
	DefaultDarkThreshold     uint8 = 45
	DefaultExpectedDarkRatio       = 0.3
	DefaultEyePadding              = 3.0
)

// AttentionDensity returns the share of pixels at or below threshold in
// region (pupil and iris proxy), normalised by expected and clamped to
// [0,1]. An empty region or non-positive expected ratio yields 0.
func AttentionDensity(region *image.Gray, threshold uint8, expected float64) float64 {
	if region == nil || expected <= 0 {
		return 0
	}
	b := region.Bounds()
	area := b.Dx() * b.Dy()
	if area <= 0 {
		return 0
	}

	dark := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := region.Pix[region.PixOffset(b.Min.X, y):region.PixOffset(b.Max.X, y)]
		for _, v := range row {
			if v <= threshold {
				dark++
			}
		}
	}
	return Clamp(float64(dark)/float64(area)/expected, 0, 1)
}

// EyeRegion crops box grown by pad pixels from the luminance plane, clipped
// to the image. It returns nil when nothing of the box lies inside.
// The returned image shares pixels with img.
func EyeRegion(img *image.Gray, box Rect, pad float64) *image.Gray {
	if img == nil || box.Empty() {
		return nil
	}
	grown := box.Inset(pad)
	r := image.Rect(
		int(math.Floor(grown.X)),
		int(math.Floor(grown.Y)),
		int(math.Ceil(grown.X+grown.W)),
		int(math.Ceil(grown.Y+grown.H)),
	).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	sub, ok := img.SubImage(r).(*image.Gray)
	if !ok {
		return nil
	}
	return sub
}

// MeanDensity averages AttentionDensity over every eye region that could be
// cropped. ok is false when no region was usable.
func MeanDensity(img *image.Gray, boxes []Rect, pad float64, threshold uint8, expected float64) (density float64, ok bool) {
	n := 0
	for _, box := range boxes {
		region := EyeRegion(img, box, pad)
		if region == nil {
			continue
		}
		density += AttentionDensity(region, threshold, expected)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return density / float64(n), true
}
