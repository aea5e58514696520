package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientBackendError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransientBackendError("list bridges", cause)

	assert.EqualError(t, err, "list bridges: connection refused")
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTransient(fmt.Errorf("heal: %w", err)))
	assert.False(t, IsTransient(cause))
	assert.NoError(t, NewTransientBackendError("noop", nil))
}
