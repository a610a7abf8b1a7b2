package domain

import (
	_ "crypto/sha256" // registers digest.SHA256
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// FingerprintInput is everything that determines a step's fingerprint.
type FingerprintInput struct {
	Name      InternedString
	Channel   string
	Version   string
	Source    Source
	Patches   []Patch
	Resources []Resource
	Options   OptionSet
	Args      []string
	Env       map[string]string
	Install   []string
	Platform  Platform
	// Dependencies must include every active edge, including build edges that are
	// later pruned from the plan.
	Dependencies []DepRef
}

// ComputeFingerprint hashes in with sha256. Map-valued and set-valued inputs
// are written in sorted order, so identical inputs always produce identical fingerprints.
func ComputeFingerprint(in FingerprintInput) Fingerprint {
	d := digest.Canonical.Digester()
	h := d.Hash()

	field(h, "name", in.Name.String())
	field(h, "channel", in.Channel)
	field(h, "version", in.Version)
	field(h, "platform", in.Platform.String())
	field(h, "source", in.Source.Checksum.String())

	for i, patch := range in.Patches {
		field(h, "patch", strconv.Itoa(i), patch.Source.Checksum.String(), strconv.Itoa(patch.Strip))
	}

	resources := slices.Clone(in.Resources)
	slices.SortFunc(resources, func(a, b Resource) int { return strings.Compare(a.Name, b.Name) })
	for _, res := range resources {
		field(h, "resource", res.Name, res.Source.Checksum.String())
	}

	for _, name := range slices.Sorted(maps.Keys(in.Options)) {
		field(h, "option", FormatOptionFlag(name, in.Options[name]))
	}
	for _, arg := range in.Args {
		field(h, "arg", arg)
	}
	for _, key := range slices.Sorted(maps.Keys(in.Env)) {
		field(h, "env", key, in.Env[key])
	}
	for _, cmd := range in.Install {
		field(h, "install", cmd)
	}

	deps := slices.Clone(in.Dependencies)
	slices.SortFunc(deps, func(a, b DepRef) int { return a.Name.Compare(b.Name) })
	for _, dep := range deps {
		field(h, "dep", dep.Name.String(), string(dep.Kind), dep.Fingerprint.String())
	}

	return d.Digest()
}

// field writes key and values length-prefixed, so no value can forge the
// boundary of another.
func field(w io.Writer, key string, values ...string) {
	_, _ = io.WriteString(w, key)
	_, _ = io.WriteString(w, " "+strconv.Itoa(len(values)))
	for _, v := range values {
		_, _ = io.WriteString(w, " "+strconv.Itoa(len(v))+":")
		_, _ = io.WriteString(w, v)
	}
	_, _ = w.Write([]byte{'\n'})
}
