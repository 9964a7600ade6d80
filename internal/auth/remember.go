package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RememberManager mints and verifies the remember-me cookie value. The
// value is "userID:expiresUnix:signature" where the signature is an
// HMAC-SHA256 over the first two parts, so the cookie needs no server-side
// storage and cannot be forged or extended by the client.
type RememberManager struct {
	secret []byte
	ttl    time.Duration
}

// NewRememberManager creates a RememberManager with the given signing
// secret and token lifetime
func NewRememberManager(secret string, ttl time.Duration) *RememberManager {
	return &RememberManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// TTL returns the configured token lifetime
func (rm *RememberManager) TTL() time.Duration {
	return rm.ttl
}

// Generate mints a remember-me token for a user
func (rm *RememberManager) Generate(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	if strings.Contains(userID, ":") {
		return "", fmt.Errorf("user id must not contain a separator")
	}

	expires := time.Now().Add(rm.ttl).Unix()
	payload := userID + ":" + strconv.FormatInt(expires, 10)
	return payload + ":" + rm.sign(payload), nil
}

// Verify checks a token's signature and expiry, returning the user ID
func (rm *RememberManager) Verify(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed remember token")
	}

	userID, expiresRaw, signature := parts[0], parts[1], parts[2]
	payload := userID + ":" + expiresRaw

	expected := rm.sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", fmt.Errorf("invalid remember token signature")
	}

	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed remember token expiry")
	}
	if time.Now().Unix() >= expires {
		return "", fmt.Errorf("remember token expired")
	}

	return userID, nil
}

func (rm *RememberManager) sign(payload string) string {
	mac := hmac.New(sha256.New, rm.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
