package log

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/INLOpen/nexuslog/core"
)

// MessageReader is the capability invoked once per delivered message.
//
// Implementations must tolerate concurrent invocation across different
// messages and cursors; the delivery engine runs a worker per registration.
// A panic inside Read is caught by the engine, reported through the hook
// manager, and never stops delivery to other registrations. Reader values
// must be comparable (typically pointers): UnregisterReader matches the
// exact value supplied at registration.
type MessageReader interface {
	Read(msg core.Message)
}

// WaitingReader decorates a MessageReader with wait-until-N semantics. It
// forwards every message to the wrapped reader (if any) and releases waiters
// once the expected number of messages has been read. It is primarily used
// by tests and shutdown sequencing.
type WaitingReader struct {
	inner     MessageReader
	remaining atomic.Int64
	done      chan struct{}
}

// NewWaitingReader wraps inner, waiting for expected messages. inner may be
// nil to only count.
func NewWaitingReader(expected int, inner MessageReader) *WaitingReader {
	w := &WaitingReader{inner: inner, done: make(chan struct{})}
	w.remaining.Store(int64(expected))
	if expected <= 0 {
		close(w.done)
	}
	return w
}

func (w *WaitingReader) Read(msg core.Message) {
	if w.inner != nil {
		w.inner.Read(msg)
	}
	if w.remaining.Add(-1) == 0 {
		close(w.done)
	}
}

// Await blocks until the expected number of messages has been read or the
// timeout elapses.
func (w *WaitingReader) Await(timeout time.Duration) error {
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out waiting for messages, %d outstanding", w.remaining.Load())
	}
}
