package progrock

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vito/progrock"
	"go.trai.ch/cellar/internal/core/domain"
	"go.trai.ch/cellar/internal/core/ports"
)

var _ ports.Vertex = (*Vertex)(nil)

// Vertex is one plan step on the progress tape.
type Vertex struct {
	rec  *progrock.VertexRecorder
	done sync.Once
}

func newVertex(rec *progrock.VertexRecorder) *Vertex {
	return &Vertex{rec: rec}
}

// Stdout returns the step's output stream.
func (v *Vertex) Stdout() io.Writer {
	return v.rec.Stdout()
}

// Stderr returns the step's error stream.
func (v *Vertex) Stderr() io.Writer {
	return v.rec.Stderr()
}

// Log writes warnings and errors to the error stream and everything else to the output stream.
func (v *Vertex) Log(level domain.LogLevel, msg string) {
	w := v.rec.Stdout()
	if level >= domain.LogLevelWarn {
		w = v.rec.Stderr()
	}
	_, _ = fmt.Fprintf(w, "%s: %s\n", level, strings.TrimRight(msg, "\n"))
}

// Complete finishes the step. Only the first call is recorded.
func (v *Vertex) Complete(err error) {
	v.done.Do(func() {
		v.rec.Done(err)
	})
}

// Cached marks the step as served from the artifact cache or a bottle.
func (v *Vertex) Cached() {
	v.rec.Cached()
}
