package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Final statuses persisted for a concluded login attempt
const (
	AttemptStatusValid        = "valid"
	AttemptStatusBlocked      = "blocked"
	AttemptStatusVerification = "verification"
)

// LoginAttempt represents one inbound credential submission. It is owned by
// the request scope and immutable once created.
type LoginAttempt struct {
	Email       string
	IPAddress   string
	UserAgent   string
	DeviceToken string
	UserID      *string // nil when the submitted email resolves to no user
	AttemptTime time.Time
}

// LoginLog is the persisted audit record for a concluded attempt. Exactly one
// row is written per attempt, including the eventual step-up resolution.
type LoginLog struct {
	ID             string      `db:"id"`
	UserID         *string     `db:"user_id"`
	SubmittedEmail string      `db:"submitted_email"`
	IPAddress      string      `db:"ip_address"`
	UserAgent      string      `db:"user_agent"`
	LoginTime      time.Time   `db:"login_time"`
	Status         string      `db:"status"`
	RiskScore      *float64    `db:"risk_score"`
	RiskDecision   *string     `db:"risk_decision"`
	Context        ContextBlob `db:"context_json"`
}

// ContextBlob holds the opaque decision trail for an attempt (features,
// baseline and advisory results, step-up metadata) for forensic review.
type ContextBlob map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (cb *ContextBlob) Scan(value interface{}) error {
	if value == nil {
		*cb = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*cb = ContextBlob(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (cb ContextBlob) Value() (driver.Value, error) {
	if cb == nil {
		return nil, nil
	}
	return json.Marshal(cb)
}

// MarshalJSON implements json.Marshaler
func (cb ContextBlob) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(cb))
}

// UnmarshalJSON implements json.Unmarshaler
func (cb *ContextBlob) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*cb = ContextBlob(m)
	return nil
}
