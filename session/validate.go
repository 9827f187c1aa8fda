package session

import (
	"unicode"

	"github.com/pkg/errors"
)

// validatePassword checks the password chosen during binding before any
// backend call is made:
//   - at least 8 characters
//   - contains uppercase and lowercase letters
//   - contains at least one number
func validatePassword(password string) error {
	if len(password) < 8 {
		return errors.Wrap(ErrPasswordPolicy, "must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		}
	}

	if !hasUpper {
		return errors.Wrap(ErrPasswordPolicy, "must contain an uppercase letter")
	}
	if !hasLower {
		return errors.Wrap(ErrPasswordPolicy, "must contain a lowercase letter")
	}
	if !hasNumber {
		return errors.Wrap(ErrPasswordPolicy, "must contain a number")
	}
	return nil
}
