package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher builds payload manifests with per-file xxh64 sums.
type Hasher struct {
	walker *Walker
}

// NewHasher creates a new Hasher.
func NewHasher(walker *Walker) *Hasher {
	return &Hasher{walker: walker}
}

// ComputeFileHash computes the XXHash of a file's content.
func (h *Hasher) ComputeFileHash(path string) (uint64, int64, error) {
	f, err := os.Open(path) //nolint:gosec // Path is controlled by caller
	if err != nil {
		return 0, 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer f.Close() //nolint:errcheck // Best effort close in defer

	hasher := xxhash.New()
	n, err := io.Copy(hasher, f)
	if err != nil {
		return 0, 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}
	return hasher.Sum64(), n, nil
}

// HashTree hashes path, a file or a directory, into a manifest.
func (h *Hasher) HashTree(path string) (domain.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Manifest{}, zerr.With(zerr.Wrap(err, "failed to stat payload"), "path", path)
	}
	base := path
	if !info.IsDir() {
		base = filepath.Dir(path)
	}

	var m domain.Manifest
	for rel, err := range h.walker.Files(path) {
		if err != nil {
			return domain.Manifest{}, zerr.With(zerr.Wrap(err, "failed to walk payload"), "path", path)
		}
		sum, size, err := h.ComputeFileHash(filepath.Join(base, filepath.FromSlash(rel)))
		if err != nil {
			return domain.Manifest{}, err
		}
		m.Files = append(m.Files, domain.FileEntry{
			Path: rel,
			Size: size,
			Sum:  fmt.Sprintf("%016x", sum),
		})
	}
	return m, nil
}
