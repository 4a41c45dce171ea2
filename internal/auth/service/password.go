package service

import (
	"errors"
	"strings"
	"unicode"
)

// passwordSpecials is the accepted special-character set for passwords.
const passwordSpecials = `!@#$%^&*()-_=+[]{};:'",.<>/?\|~` + "`"

// ErrWeakPassword is returned when a candidate password fails the policy.
// Weak passwords are rejected before hashing and never persisted.
var ErrWeakPassword = errors.New("weak_password")

// ValidatePassword enforces the password policy: at least 8 characters
// containing upper case, lower case, a digit and a special character.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}
