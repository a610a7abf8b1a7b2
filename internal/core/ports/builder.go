package ports

import (
	"context"

	"go.trai.ch/cellar/internal/core/domain"
)

// Builder turns a plan step and its inputs into an uncommitted artifact.
//
//go:generate go run go.uber.org/mock/mockgen -source=builder.go -destination=mocks/mock_builder.go -package=mocks
type Builder interface {
	// Build runs the step. The returned artifact's Path points at the staged payload.
	Build(ctx context.Context, req domain.BuildRequest) (domain.BuildArtifact, error)
}
