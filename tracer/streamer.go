package tracer

import (
	"fmt"
	"io"

	"github.com/pithecene-io/workbench/engine"
)

// Streamer is an engine.Listener that writes tokens to w as they arrive.
// It is the live view of a run; nothing it sees is persisted.
type Streamer struct {
	w       io.Writer
	written bool
}

// NewStreamer creates a streamer writing to w.
func NewStreamer(w io.Writer) *Streamer {
	return &Streamer{w: w}
}

// OnRunStart does nothing.
func (s *Streamer) OnRunStart(*engine.Run) {}

// OnRunEnd terminates the streamed line when the root run ends.
func (s *Streamer) OnRunEnd(run *engine.Run) {
	if run.IsRoot() && s.written {
		_, _ = fmt.Fprintln(s.w)
		s.written = false
	}
}

// OnRunError reports the root run's error.
func (s *Streamer) OnRunError(run *engine.Run) {
	if !run.IsRoot() || run.Error == nil {
		return
	}
	if s.written {
		_, _ = fmt.Fprintln(s.w)
		s.written = false
	}
	_, _ = fmt.Fprintf(s.w, "error: %s\n", *run.Error)
}

// OnToken writes token.
func (s *Streamer) OnToken(_ *engine.Run, token string) {
	_, _ = io.WriteString(s.w, token)
	s.written = true
}
