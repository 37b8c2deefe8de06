// Package session supplies the current actor identity and the bearer
// credential used to authorize the sync channel.
//
// The token is decoded, not verified: the remote authority is the only
// party that can check the signature, and it reports a bad credential
// through the channel's auth events.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/listkeeper/listkeeper/internal/models"
)

// ErrNoSubject is returned when the token carries no usable actor id.
var ErrNoSubject = errors.New("session: token has no subject claim")

// Session is the authenticated actor for this process.
type Session struct {
	token     string
	userID    models.UUID
	name      string
	email     string
	expiresAt time.Time
}

// FromToken decodes a bearer token into a session.
func FromToken(token string) (*Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("session: decode token: %w", err)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		if id, ok := claims["id"].(string); ok {
			sub = id
		}
	}
	if sub == "" {
		return nil, ErrNoSubject
	}

	s := &Session{token: token, userID: models.UUID(sub)}
	if name, ok := claims["name"].(string); ok {
		s.name = name
	}
	if email, ok := claims["email"].(string); ok {
		s.email = email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.expiresAt = exp.Time
	}
	return s, nil
}

// Token returns the bearer credential.
func (s *Session) Token() string { return s.token }

// UserID returns the actor id recorded on completed tasks and shares.
func (s *Session) UserID() models.UUID { return s.userID }

// Name returns the actor's display name, if the token carried one.
func (s *Session) Name() string { return s.name }

// Email returns the actor's email, if the token carried one.
func (s *Session) Email() string { return s.email }

// Expired reports whether the token's expiry has passed. Tokens
// without an expiry never expire locally.
func (s *Session) Expired() bool {
	return !s.expiresAt.IsZero() && time.Now().After(s.expiresAt)
}
