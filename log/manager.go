package log

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/INLOpen/nexuslog/backend"
	"github.com/INLOpen/nexuslog/core"
	"github.com/INLOpen/nexuslog/hooks"
)

const (
	DefaultReadPollInterval        = 20 * time.Millisecond
	DefaultCheckpointFlushInterval = 500 * time.Millisecond
)

// Options configures a LogManager. Store and SenderID are required; every
// other field has a usable default.
type Options struct {
	// SenderID identifies this instance on every message it appends.
	SenderID string

	// Store is the backend the manager persists through. The manager takes
	// ownership and closes it on Close.
	Store backend.Store

	// OrderPreserving hints that readers of the same log observe messages in
	// a consistent order across instances. The manager records the hint; the
	// backend adapter chooses whether to exploit it.
	OrderPreserving bool

	// ReadPollInterval bounds how long a caught-up reader waits before
	// re-checking the backend when no append notification arrives.
	ReadPollInterval time.Duration

	// CheckpointFlushInterval is how often identifier-bearing cursor
	// positions are persisted.
	CheckpointFlushInterval time.Duration

	Logger      *slog.Logger
	Tracer      trace.Tracer
	HookManager hooks.HookManager
	Clock       core.Clock

	// Optional expvar counters, published by the embedding process.
	MessagesAppended  *expvar.Int
	MessagesDelivered *expvar.Int
	ReaderFaults      *expvar.Int
	CheckpointWrites  *expvar.Int
}

// LogManager opens and tracks named Logs over one backend Store. A manager
// hands out at most one open Log per name; closing a Log detaches it so a
// later OpenLog yields a fresh instance.
type LogManager struct {
	opts        Options
	logger      *slog.Logger
	tracer      trace.Tracer
	hookManager hooks.HookManager
	clock       core.Clock
	metrics     metrics

	mu     sync.Mutex
	logs   map[string]*Log
	closed bool
}

// NewLogManager validates opts, fills in defaults and returns a ready
// manager.
func NewLogManager(opts Options) (*LogManager, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: backend store is required", core.ErrInvalidArgument)
	}
	if opts.SenderID == "" {
		return nil, fmt.Errorf("%w: sender id must not be empty", core.ErrInvalidArgument)
	}
	if opts.ReadPollInterval <= 0 {
		opts.ReadPollInterval = DefaultReadPollInterval
	}
	if opts.CheckpointFlushInterval <= 0 {
		opts.CheckpointFlushInterval = DefaultCheckpointFlushInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("nexuslog")
	}
	hookManager := opts.HookManager
	if hookManager == nil {
		hookManager = hooks.NewHookManager(logger)
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	m := &LogManager{
		opts:        opts,
		logger:      logger.With("component", "LogManager"),
		tracer:      tracer,
		hookManager: hookManager,
		clock:       clock,
		metrics: metrics{
			MessagesAppended:  opts.MessagesAppended,
			MessagesDelivered: opts.MessagesDelivered,
			ReaderFaults:      opts.ReaderFaults,
			CheckpointWrites:  opts.CheckpointWrites,
		},
		logs: make(map[string]*Log),
	}
	m.logger.Info("Log manager started", "sender_id", opts.SenderID, "order_preserving", opts.OrderPreserving)
	return m, nil
}

// SenderID returns the identity under which this manager appends messages.
func (m *LogManager) SenderID() string { return m.opts.SenderID }

// OpenLog returns the log with the given name, creating it in the backend on
// first open. While a log is open, OpenLog returns the same instance for the
// same name.
func (m *LogManager) OpenLog(name string) (*Log, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: log name must not be empty", core.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, core.ErrClosed
	}
	if l, ok := m.logs[name]; ok {
		return l, nil
	}

	if err := m.opts.Store.CreateLog(name); err != nil {
		return nil, fmt.Errorf("open log %q: %w", name, err)
	}

	l := newLog(name, m)
	m.logs[name] = l
	m.hookManager.Trigger(context.Background(), hooks.NewPostOpenLogEvent(name))
	m.logger.Info("Log opened", "log", name)
	return l, nil
}

// removeLog detaches a closed log so a later OpenLog creates a new instance.
func (m *LogManager) removeLog(l *Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.logs[l.name]; ok && cur == l {
		delete(m.logs, l.name)
	}
}

// Close closes every open log, stops asynchronous hook listeners and closes
// the backend store. The manager is unusable afterwards; to resume work over
// the same backend, build a new store and manager. Close is idempotent.
func (m *LogManager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Log, 0, len(m.logs))
	for _, l := range m.logs {
		open = append(open, l)
	}
	m.mu.Unlock()

	var firstErr error
	for _, l := range open {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.hookManager.Stop()

	if err := m.opts.Store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close backend store: %w", err)
	}
	m.logger.Info("Log manager closed")
	return firstErr
}
