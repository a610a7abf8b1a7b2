package ports

import "go.trai.ch/cellar/internal/core/domain"

// ArtifactIndex is the read side of the artifact cache.
//
//go:generate go run go.uber.org/mock/mockgen -source=artifact_cache.go -destination=mocks/mock_artifact_cache.go -package=mocks
type ArtifactIndex interface {
	// Lookup returns the artifact committed under fp.
	// Returns nil, nil on a miss.
	Lookup(fp domain.Fingerprint) (*domain.BuildArtifact, error)
}

// ArtifactCache is the content-addressed store of committed artifacts.
type ArtifactCache interface {
	ArtifactIndex

	// Commit stores artifact under fp and returns the stored record.
	// Committing identical content twice is a no-op; different content is domain.ErrDuplicateCommit.
	Commit(fp domain.Fingerprint, artifact domain.BuildArtifact) (domain.BuildArtifact, error)

	// List returns every committed artifact sorted by package name.
	List() ([]domain.BuildArtifact, error)

	// Verify re-hashes the payload of fp and compares it against the recorded manifest.
	Verify(fp domain.Fingerprint) error
}
