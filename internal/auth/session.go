package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ammar1510/mesh/internal/logger"
	"github.com/ammar1510/mesh/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingUser  = errors.New("token carries no user id")

	log = logger.New("auth")
)

// JWTClaims represents the claims in the JWT issued by the Mesh API
type JWTClaims struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// Session is the signed-in user as seen by the client. The client never
// holds the signing key, so the token is inspected, not verified; the API
// rejects forged tokens on the first request.
type Session struct {
	Token     string
	UserID    string
	Username  string
	Display   string
	ExpiresAt time.Time
}

// ParseSession extracts the session from a bearer token.
func ParseSession(tokenString string) (*Session, error) {
	if tokenString == "" {
		log.Warn("Parsing empty token")
		return nil, ErrInvalidToken
	}

	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		log.Error("Token parse error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.UserID == "" {
		return nil, ErrMissingUser
	}

	s := &Session{
		Token:    tokenString,
		UserID:   claims.UserID,
		Username: claims.Username,
		Display:  claims.DisplayName,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}

	if s.Expired(time.Now()) {
		return nil, ErrTokenExpired
	}

	log.Debug("Session parsed for user: %s", s.Username)
	return s, nil
}

// Expired reports whether the token is past its expiry at now. Tokens
// without an expiry never expire client side.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Self returns the user reference stamped on locally created messages.
func (s *Session) Self() models.UserRef {
	name := s.Display
	if name == "" {
		name = s.Username
	}
	return models.UserRef{ID: s.UserID, DisplayName: name}
}

// BearerHeader is the Authorization header value for API requests.
func (s *Session) BearerHeader() string {
	return "Bearer " + s.Token
}
