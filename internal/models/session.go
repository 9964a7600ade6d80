package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the JWT payload for an authenticated session.
type SessionClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
