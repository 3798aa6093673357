// Package log implements the durable, append-only message log used by the
// storage layer for transaction recovery and cross-instance change
// propagation. A LogManager opens named Logs over a backend.Store; each Log
// accepts appends and fans them out to independently-cursored readers, with
// optional checkpointing so a reader can resume across restarts.
package log

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/INLOpen/nexuslog/backend"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/hooks"
)

const (
	// scanBatchLimit bounds how many entries one backend scan may return to
	// a delivery worker.
	scanBatchLimit = 256

	// stallThreshold is the number of consecutive scan failures after which
	// a delivery worker reports an OnDeliveryStall event.
	stallThreshold = 8
)

// metrics groups the optional expvar counters a manager exposes.
type metrics struct {
	MessagesAppended  *expvar.Int
	MessagesDelivered *expvar.Int
	ReaderFaults      *expvar.Int
	CheckpointWrites  *expvar.Int
}

func incr(v *expvar.Int) {
	if v != nil {
		v.Add(1)
	}
}

// Log is one named, durable, append-only message stream. Instances are
// created through LogManager.OpenLog and must not be constructed directly.
type Log struct {
	name          string
	senderID      string
	store         backend.Store
	logger        *slog.Logger
	tracer        trace.Tracer
	hookManager   hooks.HookManager
	clock         core.Clock
	pollInterval  time.Duration
	flushInterval time.Duration
	metrics       metrics

	// mu guards the registration table, the active checkpoint identifier
	// and the closed flag. The marker-compatibility decision is serialized
	// on it, which makes RegisterReader linearizable per log.
	mu               sync.Mutex
	activeIdentifier string
	regs             map[uint64]*registration
	nextRegID        uint64
	closed           bool

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	onClose func(*Log)
}

// registration binds one MessageReader to one independent cursor.
type registration struct {
	id         uint64
	reader     MessageReader
	identifier string // "" when progress is not checkpointed
	notify     chan struct{}
	cancel     context.CancelFunc

	mu      sync.Mutex
	nextPos uint64
	dirty   bool
}

func (r *registration) next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nextPos
}

func (r *registration) advance(pos uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPos = pos
	r.dirty = true
}

func newLog(name string, m *LogManager) *Log {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	l := &Log{
		name:          name,
		senderID:      m.opts.SenderID,
		store:         m.opts.Store,
		logger:        m.logger.With("component", "Log", "log", name),
		tracer:        m.tracer,
		hookManager:   m.hookManager,
		clock:         m.clock,
		pollInterval:  m.opts.ReadPollInterval,
		flushInterval: m.opts.CheckpointFlushInterval,
		metrics:       m.metrics,
		regs:          make(map[uint64]*registration),
		ctx:           ctx,
		cancel:        cancel,
		group:         group,
		onClose:       m.removeLog,
	}
	l.group.Go(func() error {
		l.checkpointFlushLoop(ctx)
		return nil
	})
	return l
}

// Name returns the log's stable identity.
func (l *Log) Name() string { return l.name }

// Add durably appends content as a new message and returns it. The message's
// sender id and timestamp are assigned by the log. Add returns only after the
// backend has persisted the message; delivery to readers happens in the
// background.
func (l *Log) Add(content []byte) (core.Message, error) {
	if len(content) == 0 {
		return core.Message{}, core.ErrEmptyContent
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return core.Message{}, core.ErrClosed
	}
	l.mu.Unlock()

	ctx, span := l.tracer.Start(context.Background(), "Log.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("log.name", l.name),
		attribute.Int("log.content_size", len(content)),
	)

	owned := make([]byte, len(content))
	copy(owned, content)

	if err := l.hookManager.Trigger(ctx, hooks.NewPreAppendEvent(hooks.PreAppendPayload{
		LogName: l.name,
		Content: &owned,
	})); err != nil {
		return core.Message{}, fmt.Errorf("append rejected by pre-hook: %w", err)
	}

	ts := l.clock.Now()
	pos, err := l.store.Append(l.name, l.senderID, ts, owned)
	if err != nil {
		span.RecordError(err)
		return core.Message{}, fmt.Errorf("append to log %q: %w", l.name, err)
	}
	span.SetAttributes(attribute.Int64("log.position", int64(pos)))

	incr(l.metrics.MessagesAppended)
	l.hookManager.Trigger(ctx, hooks.NewPostAppendEvent(hooks.PostAppendPayload{
		LogName:   l.name,
		Position:  pos,
		SenderID:  l.senderID,
		Timestamp: ts,
		Size:      len(owned),
	}))

	l.wakeReaders()
	return core.NewMessage(l.senderID, ts, owned), nil
}

// wakeReaders nudges every delivery worker without blocking the writer.
func (l *Log) wakeReaders() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, reg := range l.regs {
		select {
		case reg.notify <- struct{}{}:
		default:
		}
	}
}

// RegisterReader validates the marker against the log's active checkpoint
// identifier and, on success, creates one independent cursor per supplied
// reader. Historical messages (for time and resumed identifier markers) are
// delivered first, then the cursor tails new appends.
//
// Calling RegisterReader with no readers still performs marker validation
// and, for identifier markers, claims the identifier.
func (l *Log) RegisterReader(marker ReadMarker, readers ...MessageReader) error {
	if marker.HasIdentifier() && marker.identifier == "" {
		return core.ErrEmptyIdentifier
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return core.ErrClosed
	}

	switch {
	case marker.kind == markerNow:
		// Never checkpointed, compatible with any active identifier.
	case marker.HasIdentifier():
		if l.activeIdentifier != "" && l.activeIdentifier != marker.identifier {
			return &core.IncompatibleMarkerError{
				LogName:   l.name,
				Active:    l.activeIdentifier,
				Requested: marker.identifier,
			}
		}
	default: // bare time marker
		if l.activeIdentifier != "" {
			return &core.IncompatibleMarkerError{
				LogName: l.name,
				Active:  l.activeIdentifier,
			}
		}
	}

	start, err := l.resolveStart(marker)
	if err != nil {
		return fmt.Errorf("resolve read marker for log %q: %w", l.name, err)
	}

	if marker.HasIdentifier() {
		l.activeIdentifier = marker.identifier
	}

	for _, reader := range readers {
		regCtx, regCancel := context.WithCancel(l.ctx)
		reg := &registration{
			id:      l.nextRegID,
			reader:  reader,
			notify:  make(chan struct{}, 1),
			cancel:  regCancel,
			nextPos: start,
		}
		if marker.HasIdentifier() {
			reg.identifier = marker.identifier
		}
		l.nextRegID++
		l.regs[reg.id] = reg

		l.group.Go(func() error {
			l.deliveryLoop(regCtx, reg)
			return nil
		})
		l.logger.Debug("Registered reader", "registration", reg.id, "marker", marker.String(), "start_position", start)
	}
	return nil
}

// resolveStart maps a marker to its starting position. Must be called with
// l.mu held so the Now snapshot is ordered against concurrent registrations.
func (l *Log) resolveStart(marker ReadMarker) (uint64, error) {
	if marker.HasIdentifier() {
		pos, ok, err := l.store.ReadCheckpoint(l.name, marker.identifier)
		if err != nil {
			return 0, err
		}
		if ok {
			return pos, nil
		}
	}
	switch marker.kind {
	case markerNow, markerIdentifierOrNow:
		return l.store.End(l.name)
	default:
		return l.store.SeekTime(l.name, marker.time)
	}
}

// UnregisterReader removes every registration of the exact reader value on
// this log and reports whether at least one was removed. A delivery already
// handed to the reader may still complete; no new delivery is dispatched
// afterwards.
func (l *Log) UnregisterReader(reader MessageReader) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := false
	for id, reg := range l.regs {
		if reg.reader == reader {
			reg.cancel()
			delete(l.regs, id)
			removed = true
			l.logger.Debug("Unregistered reader", "registration", id)
		}
	}
	return removed
}

// deliveryLoop is the per-registration worker: it scans the backend from the
// cursor position, dispatches each entry to the reader, and waits for a
// wakeup or the poll interval when it has caught up.
func (l *Log) deliveryLoop(ctx context.Context, reg *registration) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		entries, err := l.store.Scan(l.name, reg.next(), scanBatchLimit)
		if err != nil {
			failures++
			if failures == stallThreshold {
				l.hookManager.Trigger(ctx, hooks.NewOnDeliveryStallEvent(hooks.DeliveryStallPayload{
					LogName:  l.name,
					Failures: failures,
					Err:      err,
				}))
			}
			l.logger.Warn("Backend scan failed, backing off", "registration", reg.id, "failures", failures, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(bo.NextBackOff()):
			}
			continue
		}
		failures = 0
		bo.Reset()

		if len(entries) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-reg.notify:
			case <-time.After(l.pollInterval):
			}
			continue
		}

		for _, entry := range entries {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.dispatch(ctx, reg, entry)
			// The cursor advances even after a reader fault: redelivering a
			// message the reader cannot process is indistinguishable from a
			// poison message.
			reg.advance(entry.Position + 1)
		}
	}
}

// dispatch invokes the reader for one entry, isolating panics so one
// misbehaving reader cannot take down the delivery engine.
func (l *Log) dispatch(ctx context.Context, reg *registration, entry backend.Entry) {
	ctx, span := l.tracer.Start(ctx, "Log.Deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("log.name", l.name),
		attribute.Int64("log.position", int64(entry.Position)),
	)

	defer func() {
		if r := recover(); r != nil {
			incr(l.metrics.ReaderFaults)
			err := fmt.Errorf("reader panic: %v", r)
			l.logger.Error("Message reader faulted", "registration", reg.id, "position", entry.Position, "error", err)
			l.hookManager.Trigger(ctx, hooks.NewOnReaderFaultEvent(hooks.ReaderFaultPayload{
				LogName:  l.name,
				Position: entry.Position,
				Err:      err,
			}))
		}
	}()

	// Unregister cancels the registration context; re-check right before
	// handing the message over so a cancellation that lands mid-batch stops
	// delivery at this entry instead of the next one.
	select {
	case <-ctx.Done():
		return
	default:
	}

	reg.reader.Read(core.NewMessage(entry.SenderID, entry.Timestamp, entry.Content))
	incr(l.metrics.MessagesDelivered)
	l.hookManager.Trigger(ctx, hooks.NewPostDeliverEvent(hooks.PostDeliverPayload{
		LogName:  l.name,
		Position: entry.Position,
	}))
}

// checkpointFlushLoop periodically persists the progress of identifier-
// bearing cursors.
func (l *Log) checkpointFlushLoop(ctx context.Context) {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.flushCheckpoint(ctx)
		}
	}
}

// flushCheckpoint writes the minimum next-position across the log's
// identifier-bearing cursors. Persisting the minimum keeps resumption
// at-or-before the last delivered message for every cursor: a crash may
// redeliver, it can never skip.
func (l *Log) flushCheckpoint(ctx context.Context) {
	l.mu.Lock()
	identifier := l.activeIdentifier
	var (
		minPos uint64
		found  bool
		dirty  bool
	)
	for _, reg := range l.regs {
		if reg.identifier == "" {
			continue
		}
		reg.mu.Lock()
		pos, d := reg.nextPos, reg.dirty
		reg.mu.Unlock()
		if !found || pos < minPos {
			minPos = pos
		}
		found = true
		dirty = dirty || d
	}
	l.mu.Unlock()

	if identifier == "" || !found || !dirty {
		return
	}

	if err := l.store.WriteCheckpoint(l.name, identifier, minPos); err != nil {
		l.logger.Warn("Failed to persist checkpoint", "identifier", identifier, "position", minPos, "error", err)
		l.hookManager.Trigger(ctx, hooks.NewOnCheckpointFailEvent(hooks.CheckpointFailPayload{
			LogName:    l.name,
			Identifier: identifier,
			Err:        err,
		}))
		return
	}

	l.mu.Lock()
	for _, reg := range l.regs {
		if reg.identifier != "" {
			reg.mu.Lock()
			reg.dirty = false
			reg.mu.Unlock()
		}
	}
	l.mu.Unlock()

	incr(l.metrics.CheckpointWrites)
	l.hookManager.Trigger(ctx, hooks.NewPostCheckpointEvent(hooks.PostCheckpointPayload{
		LogName:    l.name,
		Identifier: identifier,
		Position:   minPos,
	}))
}

// Close flushes pending checkpoints, stops delivery and detaches the log
// from its manager. Add and RegisterReader fail with ErrClosed afterwards.
// Close is idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.hookManager.Trigger(context.Background(), hooks.NewPreCloseLogEvent(l.name))

	l.cancel()
	l.group.Wait()

	// Final flush so a checkpointed reader resumes where it left off.
	l.flushCheckpoint(context.Background())

	l.mu.Lock()
	l.regs = make(map[uint64]*registration)
	l.mu.Unlock()

	if l.onClose != nil {
		l.onClose(l)
	}
	l.hookManager.Trigger(context.Background(), hooks.NewPostCloseLogEvent(l.name))
	l.logger.Debug("Log closed")
	return nil
}
