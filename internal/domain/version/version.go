// Package version defines the identifier for a project's live state and its
// immutable numbered versions.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the live workspace from fixed versions.
type Kind uint8

const (
	KindCurrent Kind = iota // Live, mutable workspace
	KindFixed               // Immutable numbered version
)

// ID identifies either the current state of a project or one fixed version.
// IDs are comparable and can be used as map keys.
type ID struct {
	kind  Kind
	label string
}

// Current is the identifier of the live, mutable workspace.
var Current = ID{kind: KindCurrent}

// Fixed returns the identifier for the fixed version with the given label.
func Fixed(label string) ID {
	return ID{kind: KindFixed, label: label}
}

// FixedNumber returns the identifier for a numerically labelled version.
func FixedNumber(n int) ID {
	return Fixed(strconv.Itoa(n))
}

// Kind returns the discriminant of the identifier.
func (id ID) Kind() Kind {
	return id.kind
}

// Label returns the version label. It is empty for Current.
func (id ID) Label() string {
	return id.label
}

// IsCurrent reports whether id refers to the live workspace.
func (id ID) IsCurrent() bool {
	return id.kind == KindCurrent
}

// String renders "current" or "v<label>".
func (id ID) String() string {
	if id.kind == KindCurrent {
		return "current"
	}
	return "v" + id.label
}

// Parse is the inverse of String. A bare label without the "v" prefix is
// accepted as a fixed version as well.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ID{}, fmt.Errorf("version is empty")
	case strings.EqualFold(s, "current"):
		return Current, nil
	case strings.HasPrefix(s, "v") && len(s) > 1:
		return Fixed(s[1:]), nil
	default:
		return Fixed(s), nil
	}
}

// ValidateLabel rejects labels that Parse would not map back to the same
// fixed version when given bare, such as "current" or "v2".
func ValidateLabel(label string) error {
	id, err := Parse(label)
	if err != nil {
		return err
	}
	if id != Fixed(label) {
		return fmt.Errorf("label %q is not addressable as a fixed version", label)
	}
	return nil
}
