package exemption

import "strings"

// Mode selects how an entry is compared against a queried name.
type Mode int

const (
	// ModeSubstring matches when the queried name appears inside the pattern.
	ModeSubstring Mode = iota
	// ModeExact matches when the queried name equals the pattern byte for byte.
	ModeExact
)

func (m Mode) String() string {
	switch m {
	case ModeSubstring:
		return "substring"
	case ModeExact:
		return "exact"
	default:
		return "unknown"
	}
}

// Entry is one parsed line of the exemption list.
type Entry struct {
	Pattern string
	Mode    Mode
}

// Matches reports whether name is exempted by this entry.
// An empty name never matches.
func (e Entry) Matches(name string) bool {
	if name == "" {
		return false
	}
	if e.Mode == ModeExact {
		return e.Pattern == name
	}
	return strings.Contains(e.Pattern, name)
}

// String renders the entry the way it is written in the file.
func (e Entry) String() string {
	if e.Mode == ModeExact {
		return string(exactMarker) + e.Pattern
	}
	return e.Pattern
}
