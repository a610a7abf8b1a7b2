package ports

import (
	"context"
	"io"

	"go.trai.ch/cellar/internal/core/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry records progress for units of work.
type Telemetry interface {
	// Record starts a new vertex and returns a context carrying it.
	Record(ctx context.Context, name string, opts ...VertexOption) (context.Context, Vertex)
	// Close flushes the recording session.
	Close() error
}

// Vertex is one recorded unit of work, such as a plan step.
type Vertex interface {
	// Stdout returns a writer for the standard output stream of the work.
	Stdout() io.Writer
	// Stderr returns a writer for the error output stream of the work.
	Stderr() io.Writer
	// Log records a message against the vertex.
	Log(level domain.LogLevel, msg string)
	// Complete marks the vertex as finished, successfully when err is nil.
	Complete(err error)
	// Cached marks the vertex as served from the cache.
	Cached()
}

// VertexConfig holds configuration for a starting vertex.
type VertexConfig struct {
	// ID overrides the vertex identity, which otherwise derives from the name.
	ID string
}

// VertexOption is a functional option for configuring a vertex.
type VertexOption func(*VertexConfig)

// WithVertexID sets an explicit vertex identity.
func WithVertexID(id string) VertexOption {
	return func(c *VertexConfig) {
		c.ID = id
	}
}

type vertexKey struct{}

// ContextWithVertex returns a copy of ctx carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}
