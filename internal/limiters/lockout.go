package limiters

import (
	"errors"
	"time"
)

// LockoutConfig holds configuration for the account lockout guard.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
	// ResetAfter restarts the failure count when the previous failure is older than this.
	// Zero keeps counting until a successful login.
	ResetAfter time.Duration
	// AutoUnlock releases a guard-imposed lock once its expiry has passed. When false a
	// LOCKED account stays locked until an explicit unlock.
	AutoUnlock bool
}

// Validate rejects inconsistent lockout settings.
func (c LockoutConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Threshold < 1 {
		return errors.New("lockout Threshold must be >= 1")
	}
	if c.Duration <= 0 {
		return errors.New("lockout Duration must be > 0")
	}
	if c.ResetAfter < 0 {
		return errors.New("lockout ResetAfter must be >= 0")
	}
	return nil
}

// LockState is the lockout-relevant slice of a user record.
type LockState struct {
	// StatusLocked mirrors user status == LOCKED.
	StatusLocked   bool
	FailedAttempts int
	LockedUntil    time.Time
	LastFailureAt  time.Time
}

// LockAction tells the caller which audit fact a failure produced.
type LockAction uint8

const (
	// LockActionFailure is an ordinary failed attempt.
	LockActionFailure LockAction = iota + 1
	// LockActionLocked means this failure crossed the threshold and locked the account.
	LockActionLocked
)

func (a LockAction) String() string {
	switch a {
	case LockActionFailure:
		return "failure"
	case LockActionLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockoutGuard decides whether authentication may proceed for a user and mutates the
// user's LockState on failures and successes. It holds no state of its own; persistence
// is the caller's unit of work.
type LockoutGuard struct {
	config LockoutConfig
}

// NewLockoutGuard creates a guard for cfg.
func NewLockoutGuard(cfg LockoutConfig) *LockoutGuard {
	return &LockoutGuard{config: cfg}
}

// Config returns the guard configuration.
func (g *LockoutGuard) Config() LockoutConfig {
	return g.config
}

// IsLocked is true iff the account status is LOCKED or the lock expiry is in the future.
func (g *LockoutGuard) IsLocked(s LockState, now time.Time) bool {
	if s.StatusLocked {
		return true
	}
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

// ReleaseExpired clears a lock whose expiry has passed when AutoUnlock is enabled.
// It reports whether s changed.
func (g *LockoutGuard) ReleaseExpired(s *LockState, now time.Time) bool {
	if !g.config.AutoUnlock || s.LockedUntil.IsZero() || s.LockedUntil.After(now) {
		return false
	}
	Unlock(s)
	return true
}

// RecordFailure increments the failure counter and locks the account when the threshold
// is reached.
func (g *LockoutGuard) RecordFailure(s *LockState, now time.Time) LockAction {
	if !g.config.Enabled {
		return LockActionFailure
	}

	if g.config.ResetAfter > 0 && !s.LastFailureAt.IsZero() && now.Sub(s.LastFailureAt) > g.config.ResetAfter {
		s.FailedAttempts = 0
	}
	s.FailedAttempts++
	s.LastFailureAt = now

	if s.FailedAttempts >= g.config.Threshold {
		s.StatusLocked = true
		s.LockedUntil = now.Add(g.config.Duration)
		return LockActionLocked
	}
	return LockActionFailure
}

// RecordSuccess resets the counter and clears lock expiry.
func (g *LockoutGuard) RecordSuccess(s *LockState) {
	s.FailedAttempts = 0
	s.LockedUntil = time.Time{}
	s.LastFailureAt = time.Time{}
}

// Unlock clears status, expiry and counter together.
func Unlock(s *LockState) {
	s.StatusLocked = false
	s.FailedAttempts = 0
	s.LockedUntil = time.Time{}
	s.LastFailureAt = time.Time{}
}
