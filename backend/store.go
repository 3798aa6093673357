// Package backend defines the persistence surface the log core requires: an
// append-only, position-ordered message partition per log name, plus a point
// read/write checkpoint store. Implementations must make Append durable on
// return (a crash immediately after Append returns must not lose the entry).
package backend

import (
	"time"
)

// Entry is one persisted message as the backend sees it. Positions are
// per-log, dense and monotonically increasing, starting at zero.
type Entry struct {
	Position  uint64
	SenderID  string
	Timestamp time.Time
	Content   []byte
}

// Store is the backend adapter the log subsystem runs on.
//
// All methods are safe for concurrent use. Scan never blocks on future
// entries: it returns what is durably present at or after the given position
// and an empty slice when there is nothing new.
type Store interface {
	// CreateLog ensures the partition for the given log name exists.
	CreateLog(name string) error

	// Append durably persists an entry and returns its assigned position.
	Append(name string, senderID string, ts time.Time, content []byte) (uint64, error)

	// Scan returns entries with position >= from, in position order, up to
	// limit entries. A limit <= 0 means no bound.
	Scan(name string, from uint64, limit int) ([]Entry, error)

	// End returns the position the next Append on the log will be assigned.
	End(name string) (uint64, error)

	// SeekTime returns the position of the first entry whose timestamp is
	// at or after t, or End if no such entry exists.
	SeekTime(name string, t time.Time) (uint64, error)

	// ReadCheckpoint returns the persisted cursor position for the
	// identifier, with ok=false when no checkpoint has been written yet.
	ReadCheckpoint(name, identifier string) (pos uint64, ok bool, err error)

	// WriteCheckpoint durably records the cursor position for the identifier.
	WriteCheckpoint(name, identifier string, pos uint64) error

	// Close releases all partitions. The store must not be used afterwards.
	Close() error
}
