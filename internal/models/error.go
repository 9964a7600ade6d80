package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Decision pipeline outcomes surfaced to the login flow
	ErrAttemptBlocked = errors.New("attempt blocked by risk controls")

	// Step-up challenge errors, all recoverable by the user
	ErrChallengeExpired   = errors.New("challenge expired or not issued")
	ErrChallengeFailed    = errors.New("verification code mismatch")
	ErrChallengeExhausted = errors.New("challenge retry limit reached")
)
