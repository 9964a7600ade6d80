package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const deviceTokenBytes = 16

// GenerateDeviceToken mints a random browser recognition token
func GenerateDeviceToken() (string, error) {
	raw := make([]byte, deviceTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
