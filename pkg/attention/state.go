// Package attention classifies each frame into a discrete attention state.
package attention

import (
	"fmt"
	"strings"
)

// State is the attention state of one frame.
type State int

const (
	NoFace State = iota
	Sleeping
	Drowsy
	Distracted
	Focused
)

var stateNames = [...]string{
	NoFace:     "no_face",
	Sleeping:   "sleeping",
	Drowsy:     "drowsy",
	Distracted: "distracted",
	Focused:    "focused",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// States returns every state in declaration order.
func States() []State {
	return []State{NoFace, Sleeping, Drowsy, Distracted, Focused}
}

// ParseState resolves a state name.
func ParseState(name string) (State, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, v := range stateNames {
		if v == n {
			return State(i), nil
		}
	}
	return NoFace, fmt.Errorf("unknown attention state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
