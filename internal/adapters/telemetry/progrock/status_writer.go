package progrock

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vito/progrock"
)

type vertexStatus int

const (
	statusRunning vertexStatus = iota + 1
	statusCached
	statusCompleted
	statusFailed
)

var statusLabels = map[vertexStatus]string{
	statusRunning:   "start",
	statusCached:    "cached",
	statusCompleted: "done",
	statusFailed:    "failed",
}

// StatusWriter is a progrock.Writer that prints one line per vertex status change.
type StatusWriter struct {
	out     io.Writer
	verbose bool

	mu     sync.Mutex
	names  map[string]string
	status map[string]vertexStatus
}

// NewStatusWriter creates a StatusWriter. With verbose set, vertex logs are printed prefixed by the vertex name.
func NewStatusWriter(out io.Writer, verbose bool) *StatusWriter {
	return &StatusWriter{
		out:     out,
		verbose: verbose,
		names:   make(map[string]string),
		status:  make(map[string]vertexStatus),
	}
}

// WriteStatus prints the transitions carried by update.
func (w *StatusWriter) WriteStatus(update *progrock.StatusUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, v := range update.Vertexes {
		w.names[v.Id] = v.Name

		next := statusOf(v)
		if w.status[v.Id] == next {
			continue
		}
		w.status[v.Id] = next

		line := fmt.Sprintf("==> %-6s %s", statusLabels[next], v.Name)
		if next == statusFailed && v.Error != nil {
			line += ": " + *v.Error
		}
		if _, err := fmt.Fprintln(w.out, line); err != nil {
			return err
		}
	}

	if !w.verbose {
		return nil
	}
	for _, l := range update.Logs {
		name := w.names[l.Vertex]
		for _, line := range strings.Split(strings.TrimSuffix(string(l.Data), "\n"), "\n") {
			if _, err := fmt.Fprintf(w.out, "    %s | %s\n", name, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close does nothing; the output is owned by the caller.
func (w *StatusWriter) Close() error {
	return nil
}

func statusOf(v *progrock.Vertex) vertexStatus {
	switch {
	case v.Completed == nil:
		return statusRunning
	case v.Error != nil:
		return statusFailed
	case v.Cached:
		return statusCached
	default:
		return statusCompleted
	}
}
