// File: internal/auth/errors.go
package auth

import "errors"

var (
	// ErrAuthFailed covers every terminal login failure of a strategy.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrChallengeDetected is returned when the target serves its JS
	// anti-automation challenge instead of a usable page. Retrying the same
	// strategy immediately is pointless, so strategies fail fast on it.
	ErrChallengeDetected = errors.New("anti-automation challenge detected")
)
