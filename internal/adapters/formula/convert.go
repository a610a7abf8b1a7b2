package formula

import (
	"maps"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/zerr"
)

const defaultPatchStrip = 1

// toSpec converts a decoded formula into a domain spec. fallbackName is used when the formula has no name.
func toSpec(dto FormulaDTO, fallbackName string) (*domain.PackageSpec, error) {
	name := dto.Name
	if name == "" {
		name = fallbackName
	}

	spec := &domain.PackageSpec{
		Name:        domain.NewInternedString(name),
		Description: dto.Description,
		Homepage:    dto.Homepage,
		Env:         maps.Clone(dto.Env),
		Install:     dto.Install,
	}

	for _, ch := range dto.Channels {
		channel, err := toChannel(ch)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "package", name), "channel", ch.ID)
		}
		spec.Channels = append(spec.Channels, channel)
	}

	for _, dep := range dto.Dependencies {
		edge, err := toEdge(dep)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "package", name), "dependency", dep.Name)
		}
		spec.Dependencies = append(spec.Dependencies, edge)
	}

	for _, opt := range dto.Options {
		spec.Options = append(spec.Options, domain.BuildOption{
			Name:         opt.Name,
			Description:  opt.Description,
			Default:      opt.Default,
			EnabledArgs:  opt.EnabledArgs,
			DisabledArgs: opt.DisabledArgs,
		})
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

func toChannel(dto ChannelDTO) (domain.Channel, error) {
	src, err := toSource(dto.SourceDTO)
	if err != nil {
		return domain.Channel{}, err
	}
	ch := domain.Channel{ID: dto.ID, Version: dto.Version, Source: src}

	for _, p := range dto.Patches {
		src, err := toSource(p.SourceDTO)
		if err != nil {
			return domain.Channel{}, err
		}
		strip := defaultPatchStrip
		if p.Strip != nil {
			strip = *p.Strip
		}
		ch.Patches = append(ch.Patches, domain.Patch{Source: src, Strip: strip})
	}

	for _, r := range dto.Resources {
		src, err := toSource(r.SourceDTO)
		if err != nil {
			return domain.Channel{}, zerr.With(err, "resource", r.Name)
		}
		ch.Resources = append(ch.Resources, domain.Resource{Name: r.Name, Source: src})
	}

	for _, b := range dto.Bottles {
		platform, err := domain.ParsePlatform(b.Platform)
		if err != nil {
			return domain.Channel{}, err
		}
		src, err := toSource(b.SourceDTO)
		if err != nil {
			return domain.Channel{}, zerr.With(err, "platform", b.Platform)
		}
		ch.Bottles = append(ch.Bottles, domain.Bottle{Platform: platform, Source: src})
	}
	return ch, nil
}

func toSource(dto SourceDTO) (domain.Source, error) {
	sum, err := parseChecksum(dto.Sha256)
	if err != nil {
		return domain.Source{}, zerr.With(err, "url", dto.URL)
	}
	return domain.Source{
		Locator:  domain.Locator{URL: dto.URL, Mirrors: dto.Mirrors},
		Checksum: sum,
	}, nil
}

// parseChecksum accepts "sha256:<hex>" or bare hex.
func parseChecksum(s string) (digest.Digest, error) {
	if s == "" {
		return "", zerr.Wrap(domain.ErrInvalidSpec, "missing sha256")
	}
	d := digest.Digest(s)
	if !strings.Contains(s, ":") {
		d = digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(s))
	}
	if err := d.Validate(); err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrInvalidSpec, "invalid sha256"), "sha256", s)
	}
	return d, nil
}

func toEdge(dto DependencyDTO) (domain.DependencyEdge, error) {
	kind, err := domain.ParseDependencyKind(dto.Kind)
	if err != nil {
		return domain.DependencyEdge{}, err
	}
	edge := domain.DependencyEdge{
		Name:     domain.NewInternedString(dto.Name),
		Kind:     kind,
		Channel:  dto.Channel,
		Option:   dto.Option,
		Requires: dto.Requires,
	}
	if len(dto.OS) > 0 || len(dto.Arch) > 0 {
		edge.Platform = &domain.PlatformPredicate{OS: dto.OS, Arch: dto.Arch}
	}
	return edge, nil
}
