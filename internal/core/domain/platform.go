package domain

import (
	"runtime"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Platform identifies the operating system and architecture a plan is resolved for.
type Platform struct {
	OS   string
	Arch string
}

// CurrentPlatform returns the platform of the running process.
func CurrentPlatform() Platform {
	return Platform{OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// ParsePlatform parses a tag of the form "os/arch".
func ParsePlatform(tag string) (Platform, error) {
	osName, arch, ok := strings.Cut(tag, "/")
	if !ok || osName == "" || arch == "" {
		return Platform{}, zerr.With(zerr.New("invalid platform tag"), "tag", tag)
	}
	return Platform{OS: osName, Arch: arch}, nil
}

// String returns the "os/arch" tag.
func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// PlatformPredicate restricts a dependency edge to some platforms.
// An empty list matches any value.
type PlatformPredicate struct {
	OS   []string
	Arch []string
}

// Matches reports whether p satisfies the predicate. A nil predicate matches every platform.
func (pp *PlatformPredicate) Matches(p Platform) bool {
	if pp == nil {
		return true
	}
	if len(pp.OS) > 0 && !slices.Contains(pp.OS, p.OS) {
		return false
	}
	if len(pp.Arch) > 0 && !slices.Contains(pp.Arch, p.Arch) {
		return false
	}
	return true
}
