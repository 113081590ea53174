package autherr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := New(KindAccountLocked, "locked until tomorrow")
	wrapped := fmt.Errorf("login: %w", err)

	assert.True(t, errors.Is(wrapped, ErrAccountLocked))
	assert.False(t, errors.Is(wrapped, ErrInvalidCredentials))

	var typed *Error
	require.True(t, errors.As(wrapped, &typed))
	assert.Equal(t, "locked until tomorrow", typed.Message)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"typed", ErrExpired, KindExpired},
		{"wrapped typed", fmt.Errorf("x: %w", ErrForbidden), KindForbidden},
		{"untyped", errors.New("dial tcp: refused"), KindInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestOnlyInfrastructureIsRetryable(t *testing.T) {
	assert.True(t, Retryable(Infra(errors.New("timeout"), "")))
	assert.True(t, Retryable(errors.New("boom")))
	assert.False(t, Retryable(ErrInvalidCredentials))
	assert.False(t, Retryable(ErrBlacklistedToken))
}

func TestPublicHidesInternalCause(t *testing.T) {
	kind, msg := Public(Infra(errors.New("pq: password authentication failed for user postgres"), "load account"))
	assert.Equal(t, KindInfrastructure, kind)
	assert.Equal(t, "service temporarily unavailable", msg)

	kind, msg = Public(Wrap(KindInvalidCredentials, errors.New("no such account"), ""))
	assert.Equal(t, KindInvalidCredentials, kind)
	assert.Equal(t, "invalid email or password", msg)
}
