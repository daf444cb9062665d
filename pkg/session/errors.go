package session

import "errors"

// Sentinel errors for session operations.
var (
	// ErrSessionNotFound is returned for an unknown or stopped session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when starting a session with a used ID.
	ErrSessionExists = errors.New("session already exists")

	// ErrTooManySessions is returned when MaxSessions is reached.
	ErrTooManySessions = errors.New("too many active sessions")

	// ErrClosed is returned by Start after Close.
	ErrClosed = errors.New("session manager closed")

	// ErrNoDetector is returned when a session needs a detector backend that
	// cannot be opened.
	ErrNoDetector = errors.New("no detector available")

	// ErrStaleFrame is returned for frames captured too long ago.
	ErrStaleFrame = errors.New("stale frame dropped")

	// ErrFutureFrame is returned for frames stamped further ahead of the
	// server clock than StaleAfter.
	ErrFutureFrame = errors.New("frame from the future dropped")

	// ErrOutOfOrder is returned for frames not newer than the last applied one.
	ErrOutOfOrder = errors.New("out-of-order frame dropped")

	// ErrRateLimited is returned for frames above the session frame rate.
	ErrRateLimited = errors.New("frame rate limit exceeded")
)

// DropReason returns a short label for a frame admission error, or "" for
// any other error.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrStaleFrame):
		return "stale"
	case errors.Is(err, ErrFutureFrame):
		return "clock_skew"
	case errors.Is(err, ErrOutOfOrder):
		return "out_of_order"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return ""
	}
}
