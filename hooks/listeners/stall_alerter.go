package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexuslog/hooks"
)

// DeliveryStallAlerter surfaces repeated backend scan failures. The delivery
// engine retries scans internally with backoff; once the failure count passes
// the engine's bound it fires OnDeliveryStall, and this listener turns that
// into an operator-visible error log.
type DeliveryStallAlerter struct {
	logger *slog.Logger
}

// NewDeliveryStallAlerter creates a listener for OnDeliveryStall events.
func NewDeliveryStallAlerter(logger *slog.Logger) *DeliveryStallAlerter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DeliveryStallAlerter{
		logger: logger.With("component", "DeliveryStallAlerter"),
	}
}

// OnEvent handles the OnDeliveryStall event.
func (l *DeliveryStallAlerter) OnEvent(_ context.Context, event hooks.HookEvent) error {
	if event.Type() != hooks.EventOnDeliveryStall {
		return nil
	}

	payload, ok := event.Payload().(hooks.DeliveryStallPayload)
	if !ok {
		l.logger.Error("Received OnDeliveryStall event with incorrect payload type", "payload_type", fmt.Sprintf("%T", event.Payload()))
		return nil
	}

	l.logger.Error("Log delivery is stalled on backend scan failures",
		"log", payload.LogName,
		"consecutive_failures", payload.Failures,
		"error", payload.Err,
	)
	return nil
}

// Priority defines the execution order.
func (l *DeliveryStallAlerter) Priority() int { return 100 }

// IsAsync keeps stall reporting off the delivery loop.
func (l *DeliveryStallAlerter) IsAsync() bool { return true }
