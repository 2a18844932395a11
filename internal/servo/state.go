package servo

import "fmt"

// State is the caller visible state of a servo.
type State int

const (
	// Unlocked means the servo is not yet ready to track the master clock.
	Unlocked State = iota

	// Jump means the servo requests a clock step to correct the offset.
	Jump

	// Locked means the servo is tracking the master clock.
	Locked

	// LockedStable means the last NumOffsetValues offsets were all below
	// the offset threshold. Only the dispatcher produces it.
	LockedStable
)

var stateNames = map[State]string{
	Unlocked:     "unlocked",
	Jump:         "jump",
	Locked:       "locked",
	LockedStable: "locked_stable",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseState accepts the names produced by String.
func ParseState(name string) (State, error) {
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return Unlocked, fmt.Errorf("unknown servo state %q", name)
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// RawState is the state a variant reports for one sample. Only RawUnlocked,
// RawJump and RawLocked exist, so a variant cannot claim LockedStable.
// The zero value is RawUnlocked.
type RawState struct {
	s State
}

var (
	RawUnlocked = RawState{s: Unlocked}
	RawJump     = RawState{s: Jump}
	RawLocked   = RawState{s: Locked}
)

// State returns the matching observed state.
func (r RawState) State() State {
	return r.s
}

func (r RawState) String() string {
	return r.s.String()
}
