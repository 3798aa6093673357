package log

import (
	"fmt"
	"time"
)

type markerKind int

const (
	markerNow markerKind = iota
	markerTime
	markerIdentifierOrNow
	markerIdentifierOrTime
)

// ReadMarker describes where a new reader registration starts consuming a
// log, and whether its progress is checkpointed. Markers are pure values;
// their starting position is resolved against the backend at registration
// time.
type ReadMarker struct {
	kind       markerKind
	identifier string
	time       time.Time
}

// FromNow starts from the position the log has at registration time.
// Messages appended earlier are never delivered. Not checkpointed.
func FromNow() ReadMarker {
	return ReadMarker{kind: markerNow}
}

// FromTime starts from the first message with a timestamp at or after t.
// A time with no corresponding messages is valid and yields an empty initial
// backlog. Not checkpointed.
func FromTime(t time.Time) ReadMarker {
	return ReadMarker{kind: markerTime, time: t}
}

// FromIdentifierOrNow resumes from the checkpoint persisted under identifier
// if one exists for the log; otherwise it behaves like FromNow. Progress is
// checkpointed under the identifier either way.
func FromIdentifierOrNow(identifier string) ReadMarker {
	return ReadMarker{kind: markerIdentifierOrNow, identifier: identifier}
}

// FromIdentifierOrTime resumes from the checkpoint persisted under
// identifier if one exists for the log; otherwise it behaves like
// FromTime(t). Progress is checkpointed under the identifier either way.
func FromIdentifierOrTime(identifier string, t time.Time) ReadMarker {
	return ReadMarker{kind: markerIdentifierOrTime, identifier: identifier, time: t}
}

// HasIdentifier reports whether the marker checkpoints reader progress.
func (m ReadMarker) HasIdentifier() bool {
	return m.kind == markerIdentifierOrNow || m.kind == markerIdentifierOrTime
}

// Identifier returns the checkpoint identifier, or "" for plain markers.
func (m ReadMarker) Identifier() string { return m.identifier }

// Time returns the fallback start time for time-based markers.
func (m ReadMarker) Time() time.Time { return m.time }

func (m ReadMarker) String() string {
	switch m.kind {
	case markerNow:
		return "ReadMarker(now)"
	case markerTime:
		return fmt.Sprintf("ReadMarker(time=%s)", m.time.Format(time.RFC3339Nano))
	case markerIdentifierOrNow:
		return fmt.Sprintf("ReadMarker(identifier=%q, fallback=now)", m.identifier)
	default:
		return fmt.Sprintf("ReadMarker(identifier=%q, fallback=%s)", m.identifier, m.time.Format(time.RFC3339Nano))
	}
}
