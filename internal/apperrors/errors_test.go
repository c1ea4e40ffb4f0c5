package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindConflict, "blueprint.update", cause)

	require.ErrorIs(t, err, ErrConflict)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(NewNode(KindTimeout, "executor.run", "n1", errors.New("slow"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, IsRetriable(New(KindTimeout, "op", nil)))
	assert.True(t, IsRetriable(New(KindUpstream, "op", nil)))
	assert.False(t, IsRetriable(New(KindValidation, "op", nil)))
	assert.False(t, IsRetriable(New(KindCancelled, "op", nil)))
	assert.False(t, IsRetriable(errors.New("plain")))
}
