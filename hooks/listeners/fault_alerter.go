package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/INLOpen/nexuslog/hooks"
)

// ReaderFaultAlerter logs a warning for every reader fault and keeps a
// running count. A reader that faults persistently is a consumer bug, not a
// log fault, so the alerter is the only place the failure becomes visible to
// operators.
type ReaderFaultAlerter struct {
	logger *slog.Logger
	faults atomic.Uint64
}

// NewReaderFaultAlerter creates a listener for OnReaderFault events.
func NewReaderFaultAlerter(logger *slog.Logger) *ReaderFaultAlerter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ReaderFaultAlerter{
		logger: logger.With("component", "ReaderFaultAlerter"),
	}
}

// OnEvent handles the OnReaderFault event.
func (l *ReaderFaultAlerter) OnEvent(_ context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnReaderFault {
		return nil
	}

	payload, ok := event.Payload().(hooks.ReaderFaultPayload)
	if !ok {
		l.logger.Error("Received OnReaderFault event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.faults.Add(1)
	l.logger.Warn("Message reader faulted, cursor advances past the message",
		"log", payload.LogName,
		"position", payload.Position,
		"error", payload.Err,
	)
	return nil
}

// FaultCount returns the number of reader faults observed so far.
func (l *ReaderFaultAlerter) FaultCount() uint64 { return l.faults.Load() }

// Priority defines the execution order.
func (l *ReaderFaultAlerter) Priority() int { return 100 }

// IsAsync makes fault logging non-blocking for the delivery path.
func (l *ReaderFaultAlerter) IsAsync() bool { return false }
