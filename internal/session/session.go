package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession      = errors.New("no session stored")
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionExpired = errors.New("session token expired")
	ErrInitializing   = errors.New("session still initializing")
)

var validate = validator.New()

// UserProfile is the snapshot of the logged-in user as returned by the last
// successful auth response. It is never edited client side.
type UserProfile struct {
	ID        int    `json:"id" validate:"gt=0"`
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at"`
}

// Session pairs the bearer token with the profile it was issued for. Either
// both are present or the session does not exist.
type Session struct {
	Token string       `json:"token" validate:"required"`
	User  *UserProfile `json:"user" validate:"required"`
}

func (s *Session) Validate() error {
	if s == nil {
		return ErrInvalidSession
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSession, err)
	}
	return nil
}

// Valid checks the session by local inspection only: structure, and the
// token expiry when the token is a JWT.
func (s *Session) Valid(now time.Time) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if TokenExpired(s.Token, now) {
		return ErrSessionExpired
	}
	return nil
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{
		Token: s.Token,
		User:  s.User.Clone(),
	}
}

func (u *UserProfile) Clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// TokenExpired reports whether token is a JWT whose exp claim is not after
// now. The signature is not verified; opaque tokens are never expired here.
func TokenExpired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
