package geometry

import "math"

// HeadPoseQuality scores how frontal the head is from the nose bridge, nose
// tip and chin. A frontal face puts the nose tip halfway between bridge and
// chin; quality falls linearly to 0 once the tip strays 30% of the face
// height from that point. Degenerate input yields 0.
func HeadPoseQuality(bridge, tip, chin Point) float64 {
	if !bridge.Finite() || !tip.Finite() || !chin.Finite() {
		return 0
	}
	faceHeight := bridge.Dist(chin)
	if faceHeight == 0 {
		return 0
	}
	ideal := bridge.Mid(chin)
	return math.Max(0, 1-tip.Dist(ideal)/(faceHeight*0.3))
}
