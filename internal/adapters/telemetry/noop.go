// Package telemetry selects how step progress is recorded.
package telemetry

import (
	"context"
	"io"

	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
)

var _ ports.Telemetry = Noop{}

// Noop discards all progress.
type Noop struct{}

// Record returns ctx carrying a vertex that discards everything.
func (Noop) Record(ctx context.Context, _ string, _ ...ports.VertexOption) (context.Context, ports.Vertex) {
	v := noopVertex{}
	return ports.ContextWithVertex(ctx, v), v
}

// Close does nothing.
func (Noop) Close() error { return nil }

type noopVertex struct{}

func (noopVertex) Stdout() io.Writer                { return io.Discard }
func (noopVertex) Stderr() io.Writer                { return io.Discard }
func (noopVertex) Log(_ domain.LogLevel, _ string) {}
func (noopVertex) Complete(_ error)                 {}
func (noopVertex) Cached()                          {}
