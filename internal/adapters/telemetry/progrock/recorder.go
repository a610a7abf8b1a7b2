// Package progrock records step progress with github.com/vito/progrock.
package progrock

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/cellar/internal/core/ports"
)

var _ ports.Telemetry = (*Recorder)(nil)

// Recorder implements ports.Telemetry on a progrock recorder.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder
}

// New creates a Recorder that prints step transitions to out. With verbose set,
// step output is echoed too.
func New(out io.Writer, verbose bool) *Recorder {
	return NewRecorder(NewStatusWriter(out, verbose))
}

// NewRecorder creates a Recorder on w.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Record starts a vertex. Its digest derives from the vertex ID option, or the name.
func (r *Recorder) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	cfg := ports.VertexConfig{ID: name}
	for _, opt := range opts {
		opt(&cfg)
	}

	v := newVertex(r.rec.Vertex(digest.FromString(cfg.ID), name))
	return ports.ContextWithVertex(ctx, v), v
}

// Close flushes and closes the underlying writer.
func (r *Recorder) Close() error {
	return r.w.Close()
}
