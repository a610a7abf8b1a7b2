package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
)

// ArtifactOrigin records how an artifact entered the cache.
type ArtifactOrigin string

const (
	// OriginBuilt marks artifacts produced by the builder.
	OriginBuilt ArtifactOrigin = "built"
	// OriginBottle marks precompiled bottles committed in place of a build.
	OriginBottle ArtifactOrigin = "bottle"
)

// FileEntry is one file of an artifact payload.
type FileEntry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	// Sum is the hex xxh64 of the file content.
	Sum string `json:"sum"`
}

// Manifest lists the files of a payload, sorted by path.
type Manifest struct {
	Files []FileEntry `json:"files,omitzero"`
}

// Digest returns the sha256 digest of the manifest's canonical text form.
func (m Manifest) Digest() digest.Digest {
	var b strings.Builder
	for _, f := range m.Files {
		b.WriteString(f.Path)
		b.WriteByte(0)
		b.WriteString(strconv.FormatInt(f.Size, 10))
		b.WriteByte(0)
		b.WriteString(f.Sum)
		b.WriteByte('\n')
	}
	return digest.FromString(b.String())
}

// Size returns the total payload size in bytes.
func (m Manifest) Size() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}

// BuildArtifact is the committed output of one plan step. It is immutable once committed.
type BuildArtifact struct {
	Fingerprint   Fingerprint    `json:"fingerprint"`
	Package       string         `json:"package"`
	Version       string         `json:"version,omitzero"`
	Channel       string         `json:"channel,omitzero"`
	Origin        ArtifactOrigin `json:"origin"`
	ContentDigest digest.Digest  `json:"content_digest"`
	// Path is the payload location: a staging directory before commit, the cache object after.
	Path        string    `json:"path,omitzero"`
	Manifest    Manifest  `json:"manifest,omitzero"`
	CommittedAt time.Time `json:"committed_at,omitzero"`
}

// LocalBlob is a verified blob on local disk.
type LocalBlob struct {
	Path   string
	Digest digest.Digest
	Size   int64
	// URL is the locator candidate that served the bytes.
	URL string
}

// BuildRequest is everything the builder receives for one step.
// Environment and arguments are explicit; builders must not rely on ambient process state.
type BuildRequest struct {
	Step      PlanStep
	Source    LocalBlob
	Patches   []LocalBlob
	Resources map[string]LocalBlob
	// Dependencies maps dependency names to their committed artifacts.
	Dependencies map[string]BuildArtifact
}
