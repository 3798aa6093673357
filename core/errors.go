package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the base error for caller mistakes that must not
	// be retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmptyContent is returned when a caller appends a message with no
	// content.
	ErrEmptyContent = fmt.Errorf("%w: message content must not be empty", ErrInvalidArgument)

	// ErrEmptyIdentifier is returned when a read marker is constructed with an
	// empty checkpoint identifier.
	ErrEmptyIdentifier = fmt.Errorf("%w: checkpoint identifier must not be empty", ErrInvalidArgument)

	// ErrIncompatibleMarker is returned when a reader registration conflicts
	// with the checkpoint identifier already active on a log.
	ErrIncompatibleMarker = fmt.Errorf("%w: read marker incompatible with active checkpoint identifier", ErrInvalidArgument)

	// ErrClosed is returned by operations on a closed log or log manager.
	ErrClosed = errors.New("log is closed")

	// ErrBackendUnavailable indicates a transient persistence-layer failure.
	// Operations failing with this error are safe to retry.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)

// IncompatibleMarkerError carries the details of a rejected reader
// registration. It unwraps to ErrIncompatibleMarker.
type IncompatibleMarkerError struct {
	LogName   string
	Active    string
	Requested string
}

func (e *IncompatibleMarkerError) Error() string {
	requested := e.Requested
	if requested == "" {
		requested = "<none>"
	}
	return fmt.Sprintf("log %q already has active checkpoint identifier %q, registration requested %q", e.LogName, e.Active, requested)
}

func (e *IncompatibleMarkerError) Unwrap() error { return ErrIncompatibleMarker }

// IsIncompatibleMarker checks whether err (or any error in its chain) is a
// marker-compatibility rejection.
func IsIncompatibleMarker(err error) bool {
	return errors.Is(err, ErrIncompatibleMarker)
}

// IsInvalidArgument checks whether err represents a non-retryable caller
// mistake.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
