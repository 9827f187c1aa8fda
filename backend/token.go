package backend

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// ExpiresAt reads the access token's exp claim without verifying the
// signature. The server is the only party that verifies; the client just
// needs the horizon for logging and proactive refresh scheduling.
func (s *Session) ExpiresAt() (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, claims); err != nil {
		return time.Time{}, errors.Wrap(err, "[Session.ExpiresAt] jwt.ParseUnverified")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, errors.Wrap(err, "[Session.ExpiresAt] claims.GetExpirationTime")
	}
	if exp == nil {
		return time.Time{}, errors.New("[Session.ExpiresAt] token has no exp claim")
	}
	return exp.Time, nil
}
