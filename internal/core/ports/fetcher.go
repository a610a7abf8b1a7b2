package ports

import (
	"context"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/cellar/internal/core/domain"
)

// Fetcher retrieves blobs and verifies their content digest.
//
//go:generate go run go.uber.org/mock/mockgen -source=fetcher.go -destination=mocks/mock_fetcher.go -package=mocks
type Fetcher interface {
	// Fetch tries the primary URL and then each mirror. The returned blob always matches expected.
	// Errors classify as domain.ErrIntegrityMismatch or domain.ErrFetchFailed.
	Fetch(ctx context.Context, loc domain.Locator, expected digest.Digest) (domain.LocalBlob, error)
}
