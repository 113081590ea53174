package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestFailLocksAtThreshold(t *testing.T) {
	p := DefaultPolicy()
	var s State

	for i := 1; i < DefaultMaxAttempts; i++ {
		s = p.Fail(s, t0)
		assert.Equal(t, i, s.Failed)
		assert.Nil(t, s.LockedUntil)
		assert.False(t, p.Evaluate(s, t0).Locked)
	}

	s = p.Fail(s, t0)
	require.NotNil(t, s.LockedUntil)
	assert.Equal(t, DefaultMaxAttempts, s.Failed)
	assert.Equal(t, t0.Add(DefaultLockDuration), *s.LockedUntil)

	st := p.Evaluate(s, t0.Add(time.Minute))
	assert.True(t, st.Locked)
	assert.Equal(t, t0.Add(DefaultLockDuration), st.Until)
}

func TestLockLapses(t *testing.T) {
	p := DefaultPolicy()
	until := t0.Add(2 * time.Hour)
	s := State{Failed: 5, LockedUntil: &until}

	assert.True(t, p.Evaluate(s, until.Add(-time.Second)).Locked)

	st := p.Evaluate(s, until)
	assert.False(t, st.Locked)
	assert.Zero(t, st.Failed)
}

func TestFailAfterLapseRestartsCount(t *testing.T) {
	until := t0.Add(2 * time.Hour)
	s := State{Failed: 5, LockedUntil: &until}

	next := DefaultPolicy().Fail(s, until.Add(time.Minute))
	assert.Equal(t, State{Failed: 1}, next)
}

func TestFailWhileLockedKeepsLockInstant(t *testing.T) {
	until := t0.Add(2 * time.Hour)
	s := State{Failed: 5, LockedUntil: &until}

	next := DefaultPolicy().Fail(s, t0.Add(time.Hour))
	require.NotNil(t, next.LockedUntil)
	assert.Equal(t, until, *next.LockedUntil)
	assert.Equal(t, 6, next.Failed)
}

func TestSucceedClears(t *testing.T) {
	until := t0.Add(time.Hour)
	s := DefaultPolicy().Succeed(State{Failed: 3, LockedUntil: &until})
	assert.Equal(t, State{}, s)
}

func TestCustomPolicy(t *testing.T) {
	p := Policy{MaxAttempts: 2, LockDuration: time.Minute}
	s := p.Fail(p.Fail(State{}, t0), t0)
	require.NotNil(t, s.LockedUntil)
	assert.Equal(t, t0.Add(time.Minute), *s.LockedUntil)
}

func TestFailAfterLapseRelocksAtThresholdOfOne(t *testing.T) {
	p := Policy{MaxAttempts: 1, LockDuration: time.Minute}
	until := t0.Add(time.Minute)
	s := State{Failed: 1, LockedUntil: &until}

	now := until.Add(time.Second)
	next := p.Fail(s, now)
	require.NotNil(t, next.LockedUntil)
	assert.Equal(t, 1, next.Failed)
	assert.Equal(t, now.Add(time.Minute), *next.LockedUntil)
	assert.True(t, p.Evaluate(next, now).Locked)
}
