package util

import "testing"

func TestIsValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last@sub.example.org",
		"member+tag@nitp.example",
	}
	for _, s := range valid {
		if !IsValidEmail(s) {
			t.Errorf("IsValidEmail(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"plain",
		"no-at.example.com",
		"two@@example.com",
		"spaces in@example.com",
		"user@nodot",
	}
	for _, s := range invalid {
		if IsValidEmail(s) {
			t.Errorf("IsValidEmail(%q) = true, want false", s)
		}
	}
}

func TestIsValidPhone(t *testing.T) {
	valid := []string{
		"+15551234567",
		"15551234567",
		"+442071838750",
	}
	for _, s := range valid {
		if !IsValidPhone(s) {
			t.Errorf("IsValidPhone(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"+0123456",
		"0123456789",
		"555-123-4567",
		"phone",
		"+1",
	}
	for _, s := range invalid {
		if IsValidPhone(s) {
			t.Errorf("IsValidPhone(%q) = true, want false", s)
		}
	}
}

func TestIsValidOTPCode(t *testing.T) {
	valid := []string{"000000", "123456", "999999"}
	for _, s := range valid {
		if !IsValidOTPCode(s) {
			t.Errorf("IsValidOTPCode(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "12345", "1234567", "12345a", "12 456", "-12345"}
	for _, s := range invalid {
		if IsValidOTPCode(s) {
			t.Errorf("IsValidOTPCode(%q) = true, want false", s)
		}
	}
}
