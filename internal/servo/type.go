package servo

import (
	"fmt"
	"strings"
)

// Type selects a servo variant.
type Type int

const (
	PI Type = iota
	LinReg
	NTPSHM
	NullF
	RefclockSock
)

var typeNames = map[Type]string{
	PI:           "pi",
	LinReg:       "linreg",
	NTPSHM:       "ntpshm",
	NullF:        "nullf",
	RefclockSock: "refclock_sock",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// ParseType accepts the clock_servo names, case-insensitively.
func ParseType(name string) (Type, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, name)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
