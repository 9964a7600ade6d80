package models

import "time"

// PendingStepUp is the session-scoped challenge in flight. At most one
// outstanding challenge exists per session; it is cleared on verify, expiry,
// or a new login attempt from the same session.
type PendingStepUp struct {
	ID             string      `db:"id"`
	SessionID      string      `db:"session_id"`
	UserID         string      `db:"user_id"`
	SubmittedEmail string      `db:"submitted_email"`
	Remember       bool        `db:"remember"`
	IPAddress      string      `db:"ip_address"`
	UserAgent      string      `db:"user_agent"`
	RiskScore      *float64    `db:"risk_score"`
	RiskDecision   *string     `db:"risk_decision"`
	Context        ContextBlob `db:"context_json"` // features + baseline + advisory trail
	CodeSecret     string      `db:"code_secret"`  // per-challenge HOTP secret, base32
	CodeCounter    int64       `db:"code_counter"`
	Attempts       int         `db:"attempts"`
	IssuedAt       time.Time   `db:"issued_at"`
	ExpiresAt      time.Time   `db:"expires_at"`
}

// Expired reports whether the challenge has outlived its TTL at time now.
// The expiry timestamp is checked on every read rather than trusting the
// host session lifetime.
func (p *PendingStepUp) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
