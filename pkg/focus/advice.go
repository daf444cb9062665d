package focus

import "github.com/teslashibe/go-focus/pkg/attention"

// Issue names the weakest component of a frame.
type Issue string

const (
	IssueNone      Issue = ""
	IssueEyes      Issue = "eye_openness"
	IssueGaze      Issue = "gaze_direction"
	IssueHeadPose  Issue = "head_position"
	IssueMovement  Issue = "movement"
	IssueAttention Issue = "attention"
)

// PrimaryIssue returns the lowest sub-signal below 1.0. Frames without a
// face have no components and report IssueNone.
func PrimaryIssue(s Signals) Issue {
	issue, lowest := IssueNone, 1.0
	for _, c := range []struct {
		issue Issue
		value float64
	}{
		{IssueEyes, s.EyeOpenness},
		{IssueGaze, s.Gaze},
		{IssueHeadPose, s.HeadPose},
		{IssueMovement, s.Stability},
		{IssueAttention, s.Attention},
	} {
		if c.value < lowest {
			issue, lowest = c.issue, c.value
		}
	}
	return issue
}

var lowAdvice = map[Issue]string{
	IssueEyes:      "Please open your eyes more and stay alert",
	IssueGaze:      "Try to look directly at the screen",
	IssueHeadPose:  "Please face the camera directly",
	IssueMovement:  "Try to reduce head movement",
	IssueAttention: "Your eyes indicate you're not focused on the screen",
	IssueNone:      "Please pay more attention",
}

var midAdvice = map[Issue]string{
	IssueEyes:      "Your eyes indicate reduced focus",
	IssueGaze:      "Your gaze is wandering from the screen",
	IssueHeadPose:  "Your head position could be improved",
	IssueMovement:  "You're moving more than optimal",
	IssueAttention: "Try to focus your eyes on the content",
	IssueNone:      "Try to focus more",
}

// Advice returns a short operator message for a result.
func Advice(r Result) string {
	if r.State == attention.Sleeping || r.State == attention.Drowsy || (r.EyesClosed && r.State != attention.NoFace) {
		return "You appear to be drowsy. Please take a break if needed."
	}

	score := r.Smoothed / 100
	switch {
	case score <= 0:
		return "No focus detected - please check your camera and position"
	case score < 0.3:
		return lowAdvice[PrimaryIssue(r.Signals)]
	case score < 0.6:
		return midAdvice[PrimaryIssue(r.Signals)]
	case score < 0.8:
		return "Good focus. Keep it up!"
	default:
		return "Excellent focus! You're fully engaged."
	}
}
