// Package lockout implements the failed-attempt lockout state machine. It is
// pure: callers load the State, apply a transition and persist the result.
package lockout

import "time"

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 2 * time.Hour
)

type Policy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, LockDuration: DefaultLockDuration}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.LockDuration <= 0 {
		p.LockDuration = DefaultLockDuration
	}
	return p
}

// State is the persisted lockout data of one account.
type State struct {
	Failed      int
	LockedUntil *time.Time
}

type Status struct {
	Locked bool
	Until  time.Time
	Failed int
}

// Evaluate reports whether the account is locked at now. A lock whose instant
// has passed counts as unlocked with a zero counter.
func (p Policy) Evaluate(s State, now time.Time) Status {
	if s.LockedUntil != nil {
		if now.Before(*s.LockedUntil) {
			return Status{Locked: true, Until: *s.LockedUntil, Failed: s.Failed}
		}
		return Status{}
	}
	return Status{Failed: s.Failed}
}

// Fail records one failed attempt. Reaching the threshold locks the account
// until now plus the lock duration.
func (p Policy) Fail(s State, now time.Time) State {
	p = p.withDefaults()

	// A lapsed lock restarts the count from zero.
	if s.LockedUntil != nil && !now.Before(*s.LockedUntil) {
		s = State{}
	}

	next := State{Failed: s.Failed + 1, LockedUntil: s.LockedUntil}
	if next.Failed >= p.MaxAttempts && next.LockedUntil == nil {
		until := now.Add(p.LockDuration)
		next.LockedUntil = &until
	}
	return next
}

// Succeed clears the counter and any lock.
func (p Policy) Succeed(State) State {
	return State{}
}
