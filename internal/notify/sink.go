// Package notify delivers watcher notifications to their destination.
package notify

import (
	"fmt"
	"io"
	"sync"
)

// Sink receives one formatted notification per call. Implementations must be
// safe for concurrent use; delivery is best-effort and callers swallow errors.
type Sink interface {
	Send(text string) error
}

// Func adapts a function to the Sink interface.
type Func func(text string) error

// Send implements Sink.
func (f Func) Send(text string) error { return f(text) }

// Writer prints each notification to an io.Writer, separated by a blank
// line. Used by the snapshot command and in tests.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewWriter wraps out as a Sink.
func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Send implements Sink.
func (w *Writer) Send(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, text)
	return err
}
