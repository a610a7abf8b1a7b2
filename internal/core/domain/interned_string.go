package domain

import (
	"strings"
	"unique"
)

// InternedString is a value object that wraps a unique.Handle[string].
// It is used for package names, which repeat across edges, plan steps and results.
type InternedString struct {
	h unique.Handle[string]
}

// NewInternedString creates a new InternedString from a string.
func NewInternedString(s string) InternedString {
	return InternedString{
		h: unique.Make(s),
	}
}

// NewInternedStrings interns every element of ss.
func NewInternedStrings(ss []string) []InternedString {
	out := make([]InternedString, len(ss))
	for i, s := range ss {
		out[i] = NewInternedString(s)
	}
	return out
}

// String returns the underlying string value.
func (is InternedString) String() string {
	var zero unique.Handle[string]
	if is.h == zero {
		return ""
	}
	return is.h.Value()
}

// Value returns the underlying unique.Handle[string].
func (is InternedString) Value() unique.Handle[string] {
	return is.h
}

// IsZero reports whether the string was never set.
func (is InternedString) IsZero() bool {
	var zero unique.Handle[string]
	return is.h == zero
}

// Compare orders two interned strings lexicographically by their values.
func (is InternedString) Compare(other InternedString) int {
	if is == other {
		return 0
	}
	return strings.Compare(is.String(), other.String())
}

// MarshalText implements encoding.TextMarshaler.
func (is InternedString) MarshalText() ([]byte, error) {
	return []byte(is.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (is *InternedString) UnmarshalText(text []byte) error {
	is.h = unique.Make(string(text))
	return nil
}
