// Package cas implements the content-addressed artifact cache.
package cas

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	entriesDir = "entries"
	objectsDir = "objects"
	locksDir   = "locks"

	lockTimeout  = 2 * time.Minute
	lockInterval = 100 * time.Millisecond
)

var _ ports.ArtifactCache = (*Store)(nil)

// Store is a durable artifact cache rooted at a directory:
//
//	entries/<algorithm>/<hex>.json  committed artifact records
//	objects/<hex>/                  payloads
//	locks/<hex>.lock                per-fingerprint commit locks
//
// Committed records are immutable, so records read once are memoized.
type Store struct {
	root   string
	hasher ports.Hasher
	now    func() time.Time

	mu    sync.RWMutex
	cache map[domain.Fingerprint]domain.BuildArtifact
}

// NewStore creates the cache layout under root if needed.
func NewStore(root string, hasher ports.Hasher) (*Store, error) {
	s := &Store{
		root:   filepath.Clean(root),
		hasher: hasher,
		now:    time.Now,
		cache:  make(map[domain.Fingerprint]domain.BuildArtifact),
	}
	for _, dir := range []string{entriesDir, objectsDir, locksDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o750); err != nil {
			return nil, zerr.With(zerr.Wrap(err, "failed to create artifact cache"), "path", s.root)
		}
	}
	return s, nil
}

// Root returns the cache directory.
func (s *Store) Root() string {
	return s.root
}

// Lookup returns the artifact committed under fp, or nil, nil on a miss.
func (s *Store) Lookup(fp domain.Fingerprint) (*domain.BuildArtifact, error) {
	if err := fp.Validate(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "invalid fingerprint"), "fingerprint", fp.String())
	}

	s.mu.RLock()
	artifact, ok := s.cache[fp]
	s.mu.RUnlock()
	if ok {
		return &artifact, nil
	}

	artifact, found, err := s.readEntry(fp)
	if err != nil || !found {
		return nil, err
	}

	s.mu.Lock()
	s.cache[fp] = artifact
	s.mu.Unlock()
	return &artifact, nil
}

// Commit copies the artifact payload into the cache and records it under fp.
// Commits of one fingerprint are serialized across goroutines and processes.
func (s *Store) Commit(fp domain.Fingerprint, artifact domain.BuildArtifact) (domain.BuildArtifact, error) {
	if err := fp.Validate(); err != nil {
		return domain.BuildArtifact{}, zerr.With(zerr.Wrap(err, "invalid fingerprint"), "fingerprint", fp.String())
	}

	if artifact.Path != "" && len(artifact.Manifest.Files) == 0 {
		manifest, err := s.hasher.HashTree(artifact.Path)
		if err != nil {
			return domain.BuildArtifact{}, err
		}
		artifact.Manifest = manifest
	}
	if artifact.ContentDigest == "" {
		artifact.ContentDigest = artifact.Manifest.Digest()
	}

	unlock, err := s.lock(fp)
	if err != nil {
		return domain.BuildArtifact{}, err
	}
	defer unlock()

	existing, found, err := s.readEntry(fp)
	if err != nil {
		return domain.BuildArtifact{}, err
	}
	if found {
		if existing.ContentDigest != artifact.ContentDigest {
			err := zerr.Wrap(domain.ErrDuplicateCommit, "fingerprint already committed with different content")
			err = zerr.With(zerr.With(err, "fingerprint", fp.String()), "package", artifact.Package)
			return domain.BuildArtifact{}, zerr.With(err, "committed_digest", existing.ContentDigest.String())
		}
		return existing, nil
	}

	if artifact.Path != "" {
		objectPath, err := s.storePayload(fp, artifact.Path)
		if err != nil {
			return domain.BuildArtifact{}, err
		}
		artifact.Path = objectPath
	}
	artifact.Fingerprint = fp
	artifact.CommittedAt = s.now().UTC()

	if err := s.writeEntry(fp, artifact); err != nil {
		return domain.BuildArtifact{}, err
	}

	s.mu.Lock()
	s.cache[fp] = artifact
	s.mu.Unlock()
	return artifact, nil
}

// List returns every committed artifact sorted by package and version.
func (s *Store) List() ([]domain.BuildArtifact, error) {
	var out []domain.BuildArtifact
	err := filepath.WalkDir(filepath.Join(s.root, entriesDir), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		artifact, err := decodeEntry(path)
		if err != nil {
			return err
		}
		out = append(out, artifact)
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list artifact cache")
	}

	slices.SortFunc(out, func(a, b domain.BuildArtifact) int {
		return cmp.Or(
			strings.Compare(a.Package, b.Package),
			strings.Compare(a.Version, b.Version),
			strings.Compare(a.Fingerprint.String(), b.Fingerprint.String()),
		)
	})
	return out, nil
}

// Verify re-hashes the payload of fp and compares it with the recorded manifest.
func (s *Store) Verify(fp domain.Fingerprint) error {
	artifact, err := s.Lookup(fp)
	if err != nil {
		return err
	}
	if artifact == nil {
		return zerr.With(zerr.New("artifact not found"), "fingerprint", fp.String())
	}
	if artifact.Path == "" {
		return nil
	}

	manifest, err := s.hasher.HashTree(artifact.Path)
	if err != nil {
		return err
	}
	if manifest.Digest() != artifact.Manifest.Digest() {
		err := zerr.Wrap(domain.ErrIntegrityMismatch, "payload does not match manifest")
		return zerr.With(zerr.With(err, "fingerprint", fp.String()), "package", artifact.Package)
	}
	return nil
}

func (s *Store) entryPath(fp domain.Fingerprint) string {
	return filepath.Join(s.root, entriesDir, fp.Algorithm().String(), fp.Encoded()+".json")
}

func (s *Store) readEntry(fp domain.Fingerprint) (domain.BuildArtifact, bool, error) {
	artifact, err := decodeEntry(s.entryPath(fp))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.BuildArtifact{}, false, nil
		}
		return domain.BuildArtifact{}, false, zerr.With(err, "fingerprint", fp.String())
	}
	return artifact, true, nil
}

func decodeEntry(path string) (domain.BuildArtifact, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is derived from the cache root
	if err != nil {
		return domain.BuildArtifact{}, err
	}
	var artifact domain.BuildArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return domain.BuildArtifact{}, zerr.With(zerr.Wrap(err, "failed to unmarshal artifact record"), "path", path)
	}
	return artifact, nil
}

// writeEntry writes the record to a temporary file and renames it into place,
// so readers never observe a partial record.
func (s *Store) writeEntry(fp domain.Fingerprint, artifact domain.BuildArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal artifact record")
	}

	path := s.entryPath(fp)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create entry directory")
	}
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // Records are not secret
		return zerr.Wrap(err, "failed to write artifact record")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return zerr.Wrap(err, "failed to commit artifact record")
	}
	return nil
}

// storePayload copies src into a fresh object directory. File payloads keep their base name.
func (s *Store) storePayload(fp domain.Fingerprint, src string) (string, error) {
	dst := filepath.Join(s.root, objectsDir, fp.Encoded())
	tmp := dst + "." + uuid.NewString() + ".tmp"

	info, err := os.Stat(src)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to stat payload"), "path", src)
	}

	if info.IsDir() {
		err = os.CopyFS(tmp, os.DirFS(src))
	} else {
		err = copyFile(src, filepath.Join(tmp, filepath.Base(src)))
	}
	if err != nil {
		_ = os.RemoveAll(tmp)
		return "", zerr.With(zerr.Wrap(err, "failed to copy payload"), "path", src)
	}

	// A payload left behind by an interrupted commit has no record and is replaced.
	if err := os.RemoveAll(dst); err != nil {
		_ = os.RemoveAll(tmp)
		return "", zerr.Wrap(err, "failed to clear stale payload")
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.RemoveAll(tmp)
		return "", zerr.Wrap(err, "failed to move payload into cache")
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	in, err := os.Open(src) //nolint:gosec // Path is provided by trusted caller
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // Read-only file

	out, err := os.Create(dst) //nolint:gosec // Path is derived from the cache root
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (s *Store) lock(fp domain.Fingerprint) (func(), error) {
	lock := flock.New(filepath.Join(s.root, locksDir, fp.Encoded()+".lock"))

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(ctx, lockInterval)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to acquire commit lock"), "fingerprint", fp.String())
	}
	if !locked {
		return nil, zerr.With(zerr.New("timed out acquiring commit lock"), "fingerprint", fp.String())
	}
	return func() { _ = lock.Unlock() }, nil
}
