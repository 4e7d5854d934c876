package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, Validation, KindOf(New(Validation, "bad input")))
	assert.Equal(t, Internal, KindOf(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", New(NotFound, "item missing"))
	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, NotFound))
	assert.False(t, IsKind(wrapped, State))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Persistence, cause, "failed to load draft %s", "d-1")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to load draft d-1", MessageOf(err))
	assert.Contains(t, err.Error(), "persistence")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUpstreamReason(t *testing.T) {
	err := UpstreamError(ReasonRateLimited, nil, "slow down")

	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Upstream, fe.Kind)
	assert.Equal(t, ReasonRateLimited, fe.Reason)
}

func TestMessageOfHidesInternals(t *testing.T) {
	assert.Equal(t, "an internal error occurred", MessageOf(errors.New("sql: driver panic")))
	assert.Empty(t, MessageOf(nil))
}
