// Package validate provides the default email and phone validators and the
// normalizer for tenant test phone numbers.
package validate

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidTestPhoneNumber = errors.New("validate: invalid test phone number")
	ErrInvalidTestCode        = errors.New("validate: invalid test phone code")
)

var (
	// E.164: leading plus, no leading zero, at most 15 digits.
	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	// Test numbers only need to look roughly like a phone number.
	testPhonePattern = regexp.MustCompile(`^\+?[\d\s().-]{3,}$`)
	nonDigits        = regexp.MustCompile(`\D`)
	testCodePattern  = regexp.MustCompile(`^\d{6}$`)
)

// Email validates addresses with validator's email rule.
type Email struct {
	v *validator.Validate
}

// NewEmail returns an email validator.
func NewEmail() *Email {
	return &Email{v: validator.New()}
}

// Valid reports whether email is syntactically valid.
func (e *Email) Valid(email string) bool {
	if email == "" {
		return false
	}
	return e.v.Var(email, "required,email") == nil
}

// Canonicalize lower-cases email.
func (e *Email) Canonicalize(email string) string {
	return strings.ToLower(email)
}

// Phone validates E.164 phone numbers.
type Phone struct{}

// Valid reports whether phoneNumber is in E.164 form.
func (Phone) Valid(phoneNumber string) bool {
	return phonePattern.MatchString(phoneNumber)
}

// TestPhoneNumber normalizes a configured test phone number to "+digits".
func TestPhoneNumber(raw string) (string, error) {
	if !testPhonePattern.MatchString(raw) {
		return "", ErrInvalidTestPhoneNumber
	}
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) < 3 || len(digits) > 17 {
		return "", ErrInvalidTestPhoneNumber
	}
	return "+" + digits, nil
}

// TestPhoneNumbers normalizes every key of numbers and checks that each
// code is six digits.
func TestPhoneNumbers(numbers map[string]string) (map[string]string, error) {
	if numbers == nil {
		return nil, nil
	}
	out := make(map[string]string, len(numbers))
	for raw, code := range numbers {
		phone, err := TestPhoneNumber(raw)
		if err != nil {
			return nil, err
		}
		if !testCodePattern.MatchString(code) {
			return nil, ErrInvalidTestCode
		}
		out[phone] = code
	}
	return out, nil
}
