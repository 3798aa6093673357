package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncompatibleMarkerError_Chain(t *testing.T) {
	err := &IncompatibleMarkerError{LogName: "tx", Active: "mark", Requested: "other"}

	assert.True(t, IsIncompatibleMarker(err))
	assert.True(t, IsInvalidArgument(err), "marker rejections surface as invalid-argument conditions")
	assert.Contains(t, err.Error(), "mark")
	assert.Contains(t, err.Error(), "other")

	wrapped := fmt.Errorf("register reader: %w", err)
	assert.True(t, IsIncompatibleMarker(wrapped))

	var ime *IncompatibleMarkerError
	assert.True(t, errors.As(wrapped, &ime))
	assert.Equal(t, "tx", ime.LogName)
}

func TestIncompatibleMarkerError_NoIdentifier(t *testing.T) {
	err := &IncompatibleMarkerError{LogName: "tx", Active: "mark"}
	assert.Contains(t, err.Error(), "<none>")
}

func TestInvalidArgumentSentinels(t *testing.T) {
	assert.True(t, IsInvalidArgument(ErrEmptyContent))
	assert.True(t, IsInvalidArgument(ErrEmptyIdentifier))
	assert.False(t, IsInvalidArgument(ErrClosed))
	assert.False(t, IsInvalidArgument(ErrBackendUnavailable))
}
