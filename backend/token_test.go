package backend_test

import (
	"testing"
	"time"

	"github.com/classdesk/go-session-client/backend"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	session := backend.Session{
		AccessToken: signToken(t, jwt.MapClaims{"sub": "user-1", "exp": exp.Unix()}),
	}

	got, err := session.ExpiresAt()
	require.NoError(t, err)
	require.True(t, got.Equal(exp))
}

func TestExpiresAtMissingClaim(t *testing.T) {
	session := backend.Session{
		AccessToken: signToken(t, jwt.MapClaims{"sub": "user-1"}),
	}

	_, err := session.ExpiresAt()
	require.Error(t, err)
}

func TestExpiresAtNotAToken(t *testing.T) {
	session := backend.Session{AccessToken: "opaque-token"}

	_, err := session.ExpiresAt()
	require.Error(t, err)
}
