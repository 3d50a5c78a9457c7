package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret-key-for-jwt-tests")

func signToken(t *testing.T, claims *JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(testKey)
	require.NoError(t, err)
	return s
}

func TestParseSession(t *testing.T) {
	userID := uuid.NewString()

	tests := []struct {
		name    string
		claims  *JWTClaims
		raw     string
		wantErr error
	}{
		{
			name: "valid token",
			claims: &JWTClaims{
				UserID:      userID,
				Username:    "testuser",
				DisplayName: "Test User",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					IssuedAt:  jwt.NewNumericDate(time.Now()),
				},
			},
		},
		{
			name: "no expiry",
			claims: &JWTClaims{
				UserID:   userID,
				Username: "testuser",
			},
		},
		{
			name: "expired token",
			claims: &JWTClaims{
				UserID:   userID,
				Username: "testuser",
				RegisteredClaims: jwt.RegisteredClaims{
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				},
			},
			wantErr: ErrTokenExpired,
		},
		{
			name:    "missing user id",
			claims:  &JWTClaims{Username: "testuser"},
			wantErr: ErrMissingUser,
		},
		{
			name:    "malformed token",
			raw:     "not.a.token",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty token",
			raw:     "",
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.raw
			if tt.claims != nil {
				token = signToken(t, tt.claims)
			}

			s, err := ParseSession(token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, s)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, userID, s.UserID)
			assert.Equal(t, "testuser", s.Username)
			assert.Equal(t, token, s.Token)
			assert.Equal(t, "Bearer "+token, s.BearerHeader())
		})
	}
}

func TestSessionSelf(t *testing.T) {
	s := &Session{UserID: "u1", Username: "alice"}
	assert.Equal(t, "alice", s.Self().DisplayName)

	s.Display = "Alice A."
	assert.Equal(t, "Alice A.", s.Self().DisplayName)
	assert.Equal(t, "u1", s.Self().ID)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now}
	assert.True(t, s.Expired(now))
	assert.False(t, s.Expired(now.Add(-time.Second)))

	assert.False(t, (&Session{}).Expired(now))
}
