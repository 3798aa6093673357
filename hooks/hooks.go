// Package hooks is the event bus of the log subsystem. Components trigger
// lifecycle events and operator-facing listeners subscribe to them, so fault
// observation never couples the delivery engine to a specific monitoring
// stack.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// Message lifecycle events.
	EventPreAppend   EventType = "PreAppend"
	EventPostAppend  EventType = "PostAppend"
	EventPostDeliver EventType = "PostDeliver"

	// Fault events.
	EventOnReaderFault    EventType = "OnReaderFault"
	EventOnDeliveryStall  EventType = "OnDeliveryStall"
	EventOnCheckpointFail EventType = "OnCheckpointFail"

	// Cursor persistence events.
	EventPostCheckpoint EventType = "PostCheckpoint"

	// Log lifecycle events.
	EventPreCloseLog  EventType = "PreCloseLog"
	EventPostCloseLog EventType = "PostCloseLog"
	EventPostOpenLog  EventType = "PostOpenLog"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event. Pre-events
	// run synchronously and may cancel the operation by returning an error;
	// Post/On-events run sync or async per listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// HookListener is implemented by event subscribers.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event fires.
	// Returning an error from a "Pre" hook cancels the operation; errors
	// from other hooks are logged without affecting the main operation.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers run first.
	Priority() int

	// IsAsync indicates if the listener should run asynchronously for
	// non-Pre events.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreAppendPayload carries the message about to be appended. Content is a
// pointer so a listener can rewrite the payload before it is persisted.
type PreAppendPayload struct {
	LogName string
	Content *[]byte
}

func NewPreAppendEvent(p PreAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPreAppend, payload: p}
}

// PostAppendPayload describes a durably appended message.
type PostAppendPayload struct {
	LogName   string
	Position  uint64
	SenderID  string
	Timestamp time.Time
	Size      int
}

func NewPostAppendEvent(p PostAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPostAppend, payload: p}
}

// PostDeliverPayload describes one message handed to one reader cursor.
type PostDeliverPayload struct {
	LogName  string
	Position uint64
}

func NewPostDeliverEvent(p PostDeliverPayload) HookEvent {
	return &BaseEvent{eventType: EventPostDeliver, payload: p}
}

// ReaderFaultPayload describes a panic or error raised by a MessageReader.
// The cursor advances past the message regardless; the fault is purely
// informational.
type ReaderFaultPayload struct {
	LogName  string
	Position uint64
	Err      error
}

func NewOnReaderFaultEvent(p ReaderFaultPayload) HookEvent {
	return &BaseEvent{eventType: EventOnReaderFault, payload: p}
}

// DeliveryStallPayload is fired when background backend scans have failed
// beyond the retry bound. This is the operator-facing fault signal; readers
// never observe backend errors directly.
type DeliveryStallPayload struct {
	LogName  string
	Failures int
	Err      error
}

func NewOnDeliveryStallEvent(p DeliveryStallPayload) HookEvent {
	return &BaseEvent{eventType: EventOnDeliveryStall, payload: p}
}

// CheckpointFailPayload is fired when persisting a cursor position failed.
type CheckpointFailPayload struct {
	LogName    string
	Identifier string
	Err        error
}

func NewOnCheckpointFailEvent(p CheckpointFailPayload) HookEvent {
	return &BaseEvent{eventType: EventOnCheckpointFail, payload: p}
}

// PostCheckpointPayload describes a successfully persisted cursor position.
type PostCheckpointPayload struct {
	LogName    string
	Identifier string
	Position   uint64
}

func NewPostCheckpointEvent(p PostCheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCheckpoint, payload: p}
}

// LogLifecyclePayload is used for open/close events.
type LogLifecyclePayload struct {
	LogName string
}

func NewPostOpenLogEvent(name string) HookEvent {
	return &BaseEvent{eventType: EventPostOpenLog, payload: LogLifecyclePayload{LogName: name}}
}

func NewPreCloseLogEvent(name string) HookEvent {
	return &BaseEvent{eventType: EventPreCloseLog, payload: LogLifecyclePayload{LogName: name}}
}

func NewPostCloseLogEvent(name string) HookEvent {
	return &BaseEvent{eventType: EventPostCloseLog, payload: LogLifecyclePayload{LogName: name}}
}

// listenerWithPriority wraps a listener with its priority.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for an event type, keeping priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		if isPreHook || !item.listener.IsAsync() {
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
		} else {
			m.wg.Add(1)
			go func(currentItem *listenerWithPriority) {
				defer m.wg.Done()
				if err := currentItem.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
				}
			}(item)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
