package exports

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidStyle is returned by ParseStyle for anything but "default" or "named".
var ErrInvalidStyle = errors.New("invalid export style")

// Style is the shape a module is imported or exported as.
type Style uint8

const (
	StyleUnknown Style = iota
	StyleDefault
	StyleNamed
)

func (s Style) String() string {
	switch s {
	case StyleDefault:
		return "default"
	case StyleNamed:
		return "named"
	default:
		return "unknown"
	}
}

// ParseStyle accepts "default" and "named" (case-insensitive).
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "default":
		return StyleDefault, nil
	case "named":
		return StyleNamed, nil
	}
	return StyleUnknown, fmt.Errorf("%w: %q", ErrInvalidStyle, s)
}
