package ports

import "go.trai.ch/cellar/internal/core/domain"

// Hasher builds content manifests of artifact payloads.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// HashTree hashes a file, or every file under a directory, into a manifest.
	HashTree(path string) (domain.Manifest, error)
}
