package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_GenerateAndValidate(t *testing.T) {
	tm := NewTokenManager("test-secret", 12*time.Hour)

	token, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := tm.ValidateSessionToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user123", claims.UserID)
	assert.Equal(t, "user@example.com", claims.Email)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_Validate_WrongSecret(t *testing.T) {
	tm := NewTokenManager("test-secret", 12*time.Hour)
	other := NewTokenManager("other-secret", 12*time.Hour)

	token, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)

	_, err = other.ValidateSessionToken(token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_Expired(t *testing.T) {
	tm := NewTokenManager("test-secret", -time.Minute)

	token, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)

	_, err = tm.ValidateSessionToken(token)
	assert.Error(t, err)
}

func TestTokenManager_Validate_Garbage(t *testing.T) {
	tm := NewTokenManager("test-secret", 12*time.Hour)

	_, err := tm.ValidateSessionToken("not.a.jwt")
	assert.Error(t, err)

	_, err = tm.ValidateSessionToken("")
	assert.Error(t, err)
}

func TestTokenManager_UniqueJTIs(t *testing.T) {
	tm := NewTokenManager("test-secret", 12*time.Hour)

	first, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)
	second, err := tm.GenerateSessionToken("user123", "user@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
