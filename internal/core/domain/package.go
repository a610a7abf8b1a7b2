// Package domain contains the core models of the package manager: specs, plans, artifacts and results.
package domain

import (
	"maps"
	"slices"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/zerr"
)

// DependencyKind tags a dependency edge.
type DependencyKind string

const (
	// DependencyBuild is needed only while building the dependent.
	DependencyBuild DependencyKind = "build"
	// DependencyRuntime is needed both while building and at runtime.
	DependencyRuntime DependencyKind = "runtime"
	// DependencyOptional is active only when its option is enabled.
	DependencyOptional DependencyKind = "optional"
	// DependencyRecommended is active unless its option is disabled.
	DependencyRecommended DependencyKind = "recommended"
)

// ParseDependencyKind validates a kind string. An empty string means runtime.
func ParseDependencyKind(s string) (DependencyKind, error) {
	switch DependencyKind(s) {
	case "":
		return DependencyRuntime, nil
	case DependencyBuild, DependencyRuntime, DependencyOptional, DependencyRecommended:
		return DependencyKind(s), nil
	default:
		return "", zerr.With(zerr.Wrap(ErrInvalidSpec, "unknown dependency kind"), "kind", s)
	}
}

// IsConditional reports whether the edge is gated by a build option.
func (k DependencyKind) IsConditional() bool {
	return k == DependencyOptional || k == DependencyRecommended
}

// Locator names where a blob can be retrieved: a primary URL and ordered mirrors.
type Locator struct {
	URL     string
	Mirrors []string
}

// Candidates returns the primary URL followed by mirrors, without blanks or repeats.
func (l Locator) Candidates() []string {
	out := make([]string, 0, 1+len(l.Mirrors))
	for _, u := range append([]string{l.URL}, l.Mirrors...) {
		if u == "" || slices.Contains(out, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

// Source is a locator paired with the digest its bytes must match.
type Source struct {
	Locator  Locator
	Checksum digest.Digest
}

// Patch is an ordered source applied on top of the main source.
type Patch struct {
	Source Source
	Strip  int
}

// Resource is an additional named source staged next to the main source.
type Resource struct {
	Name   string
	Source Source
}

// Bottle is a precompiled payload for one platform.
type Bottle struct {
	Platform Platform
	Source   Source
}

// Channel is one version line of a package (stable, devel, head).
type Channel struct {
	ID        string
	Version   string
	Source    Source
	Patches   []Patch
	Resources []Resource
	Bottles   []Bottle
}

// BottleFor returns the bottle matching p, if any.
func (c *Channel) BottleFor(p Platform) *Bottle {
	for i := range c.Bottles {
		if c.Bottles[i].Platform == p {
			return &c.Bottles[i]
		}
	}
	return nil
}

// DependencyEdge links a spec to another package.
type DependencyEdge struct {
	Name    InternedString
	Kind    DependencyKind
	Channel string
	// Option gates optional and recommended edges. Defaults to the dependency name.
	Option string
	// Requires lists option flags (with-x, without-x) the dependency must be built with.
	Requires []string
	Platform *PlatformPredicate
}

// ControllingOption returns the option name that gates a conditional edge.
func (e DependencyEdge) ControllingOption() string {
	if !e.Kind.IsConditional() {
		return ""
	}
	if e.Option != "" {
		return e.Option
	}
	return e.Name.String()
}

// BuildOption is a boolean switch declared by a spec.
type BuildOption struct {
	Name         string
	Description  string
	Default      bool
	EnabledArgs  []string
	DisabledArgs []string
}

// PackageSpec is the parsed description of one package.
type PackageSpec struct {
	Name         InternedString
	Description  string
	Homepage     string
	Channels     []Channel
	Dependencies []DependencyEdge
	Options      []BuildOption
	// Env is passed to the builder verbatim for every step of this package.
	Env     map[string]string
	Install []string
}

// Channel returns the channel with the given id. An empty id selects the first (default) channel.
func (p *PackageSpec) Channel(id string) (*Channel, bool) {
	if len(p.Channels) == 0 {
		return nil, false
	}
	if id == "" {
		return &p.Channels[0], true
	}
	for i := range p.Channels {
		if p.Channels[i].ID == id {
			return &p.Channels[i], true
		}
	}
	return nil, false
}

// DeclaredOptions returns the explicit options plus the implicit ones introduced by
// conditional edges, sorted by name. An implicit option defaults to on for
// recommended edges and off for optional ones.
func (p *PackageSpec) DeclaredOptions() []BuildOption {
	byName := make(map[string]BuildOption, len(p.Options))
	for _, opt := range p.Options {
		byName[opt.Name] = opt
	}
	for _, edge := range p.Dependencies {
		name := edge.ControllingOption()
		if name == "" {
			continue
		}
		if _, ok := byName[name]; ok {
			continue
		}
		byName[name] = BuildOption{
			Name:    name,
			Default: edge.Kind == DependencyRecommended,
		}
	}

	out := make([]BuildOption, 0, len(byName))
	for _, name := range slices.Sorted(maps.Keys(byName)) {
		out = append(out, byName[name])
	}
	return out
}

// Option looks up a declared or implicit option.
func (p *PackageSpec) Option(name string) (BuildOption, bool) {
	for _, opt := range p.DeclaredOptions() {
		if opt.Name == name {
			return opt, true
		}
	}
	return BuildOption{}, false
}

// Validate checks the structural invariants of a spec.
func (p *PackageSpec) Validate() error {
	if p.Name.String() == "" {
		return zerr.Wrap(ErrInvalidSpec, "package name is empty")
	}
	if len(p.Channels) == 0 {
		return zerr.With(zerr.Wrap(ErrInvalidSpec, "package has no channels"), "package", p.Name.String())
	}

	seen := make(map[string]struct{}, len(p.Channels))
	for _, ch := range p.Channels {
		if ch.ID == "" {
			return zerr.With(zerr.Wrap(ErrInvalidSpec, "channel id is empty"), "package", p.Name.String())
		}
		if _, dup := seen[ch.ID]; dup {
			err := zerr.Wrap(ErrDuplicateChannel, "channel ids must be unique")
			return zerr.With(zerr.With(err, "package", p.Name.String()), "channel", ch.ID)
		}
		seen[ch.ID] = struct{}{}

		if err := validateSource(ch.Source); err != nil {
			return zerr.With(zerr.With(err, "package", p.Name.String()), "channel", ch.ID)
		}
		for _, patch := range ch.Patches {
			if err := validateSource(patch.Source); err != nil {
				return zerr.With(zerr.With(err, "package", p.Name.String()), "channel", ch.ID)
			}
		}
		for _, res := range ch.Resources {
			if err := validateSource(res.Source); err != nil {
				return zerr.With(zerr.With(err, "package", p.Name.String()), "resource", res.Name)
			}
		}
	}

	for _, edge := range p.Dependencies {
		if edge.Name.String() == "" {
			return zerr.With(zerr.Wrap(ErrInvalidSpec, "dependency name is empty"), "package", p.Name.String())
		}
		for _, flag := range edge.Requires {
			if _, _, err := ParseOptionFlag(flag); err != nil {
				return zerr.With(err, "package", p.Name.String())
			}
		}
	}
	return nil
}

func validateSource(src Source) error {
	if src.Locator.URL == "" {
		return zerr.Wrap(ErrInvalidSpec, "source url is empty")
	}
	if err := src.Checksum.Validate(); err != nil {
		return zerr.With(zerr.Wrap(ErrInvalidSpec, "invalid checksum"), "url", src.Locator.URL)
	}
	return nil
}
