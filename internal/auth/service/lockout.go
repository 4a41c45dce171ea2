package service

import "time"

const (
	// MaxLoginAttempts is the number of consecutive password failures that
	// trigger a lockout.
	MaxLoginAttempts = 5

	// LockoutDuration is how long an account stays locked after the
	// triggering failure.
	LockoutDuration = time.Hour
)

// AdvanceLockout is the lockout state machine as a pure function, so it can
// be unit-tested without a database. It takes the current counters and one
// login outcome and returns the counters to persist.
//
// Rules:
//   - a successful login resets everything
//   - while locked, failures neither accumulate nor extend the lock
//   - the first failure after an expired lock restarts the count at 1
//   - the MaxLoginAttempts-th failure sets the lock to now + LockoutDuration
func AdvanceLockout(attempts int, lockUntil *time.Time, now time.Time, success bool) (int, *time.Time) {
	if success {
		return 0, nil
	}

	if lockUntil != nil {
		if now.Before(*lockUntil) {
			// Still locked; do not extend.
			return attempts, lockUntil
		}
		// Lock has expired; this failure starts a fresh count.
		attempts = 1
	} else {
		attempts++
	}

	if attempts >= MaxLoginAttempts {
		until := now.Add(LockoutDuration)
		return attempts, &until
	}

	return attempts, nil
}
