package util

import "regexp"

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	codePattern  = regexp.MustCompile(`^\d{6}$`)
)

// IsValidEmail reports whether s has a standard email shape.
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPhone reports whether s is an E.164-style phone number.
func IsValidPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// IsValidOTPCode reports whether s is exactly six digits.
func IsValidOTPCode(s string) bool {
	return codePattern.MatchString(s)
}
