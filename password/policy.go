package password

import (
	"errors"
	"unicode"
)

// Policy defines the character-class rules applied before a password is
// accepted for hashing.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy mirrors the engine's default configuration.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		RequireUpper:   true,
		RequireLower:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

var (
	// ErrTooShort is returned when the password is below the minimum length.
	ErrTooShort = errors.New("password too short")
	// ErrMissingUpper is returned when an uppercase letter is required and absent.
	ErrMissingUpper = errors.New("password needs an uppercase letter")
	// ErrMissingLower is returned when a lowercase letter is required and absent.
	ErrMissingLower = errors.New("password needs a lowercase letter")
	// ErrMissingDigit is returned when a digit is required and absent.
	ErrMissingDigit = errors.New("password needs a digit")
	// ErrMissingSpecial is returned when a symbol is required and absent.
	ErrMissingSpecial = errors.New("password needs a special character")
)

// Validate checks pw against the policy and returns the first violation.
func (p Policy) Validate(pw string) error {
	if len(pw) < p.MinLength {
		return ErrTooShort
	}

	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return ErrMissingUpper
	case p.RequireLower && !lower:
		return ErrMissingLower
	case p.RequireDigit && !digit:
		return ErrMissingDigit
	case p.RequireSpecial && !special:
		return ErrMissingSpecial
	}
	return nil
}
