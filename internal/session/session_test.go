package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestFromToken(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "user-42",
		"name":  "Ada",
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	s, err := FromToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, "user-42", s.UserID())
	assert.Equal(t, "Ada", s.Name())
	assert.Equal(t, "ada@example.com", s.Email())
	assert.Equal(t, token, s.Token())
	assert.False(t, s.Expired())
}

func TestFromTokenIDClaimFallback(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"id": "user-7"})

	s, err := FromToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, "user-7", s.UserID())
}

func TestFromTokenMissingSubject(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"email": "nobody@example.com"})

	_, err := FromToken(token)
	assert.ErrorIs(t, err, ErrNoSubject)
}

func TestFromTokenGarbage(t *testing.T) {
	_, err := FromToken("not-a-jwt")
	assert.Error(t, err)
}

func TestExpired(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	s, err := FromToken(token)
	require.NoError(t, err)
	assert.True(t, s.Expired())
}
