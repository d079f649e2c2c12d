package screen

import "fmt"

// State is the load state of a screen.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	LoadFailed
)

var stateNames = [...]string{
	Idle:       "idle",
	Loading:    "loading",
	Loaded:     "loaded",
	LoadFailed: "load_failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
