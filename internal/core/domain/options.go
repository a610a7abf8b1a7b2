package domain

import (
	"maps"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

const (
	withPrefix    = "with-"
	withoutPrefix = "without-"
)

// OptionSet maps option names to their enabled state.
type OptionSet map[string]bool

// ParseOptionFlag splits "with-x11" into ("x11", true) and "without-x11" into ("x11", false).
func ParseOptionFlag(flag string) (string, bool, error) {
	switch {
	case strings.HasPrefix(flag, withoutPrefix) && len(flag) > len(withoutPrefix):
		return strings.TrimPrefix(flag, withoutPrefix), false, nil
	case strings.HasPrefix(flag, withPrefix) && len(flag) > len(withPrefix):
		return strings.TrimPrefix(flag, withPrefix), true, nil
	default:
		return "", false, zerr.With(zerr.Wrap(ErrInvalidOption, "cannot parse option"), "flag", flag)
	}
}

// ParseOptionFlags builds an OptionSet from flags. Enabling and disabling the
// same option in one list is an OptionConflict.
func ParseOptionFlags(flags []string) (OptionSet, error) {
	set := make(OptionSet, len(flags))
	for _, flag := range flags {
		name, enabled, err := ParseOptionFlag(flag)
		if err != nil {
			return nil, err
		}
		if prev, ok := set[name]; ok && prev != enabled {
			return nil, zerr.With(zerr.Wrap(ErrOptionConflict, "option requested both ways"), "option", name)
		}
		set[name] = enabled
	}
	return set, nil
}

// FormatOptionFlag is the inverse of ParseOptionFlag.
func FormatOptionFlag(name string, enabled bool) string {
	if enabled {
		return withPrefix + name
	}
	return withoutPrefix + name
}

// Flags returns the set as sorted with-/without- flags.
func (s OptionSet) Flags() []string {
	out := make([]string, 0, len(s))
	for _, name := range slices.Sorted(maps.Keys(s)) {
		out = append(out, FormatOptionFlag(name, s[name]))
	}
	return out
}

// Enabled returns the sorted names of enabled options.
func (s OptionSet) Enabled() []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(s)) {
		if s[name] {
			out = append(out, name)
		}
	}
	return out
}

// Clone returns a copy of the set.
func (s OptionSet) Clone() OptionSet {
	if s == nil {
		return OptionSet{}
	}
	return maps.Clone(s)
}
