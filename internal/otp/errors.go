package otp

import "errors"

// Typed outcomes of issuing and verifying codes. Callers branch with
// errors.Is; anything outside this set is an internal failure.
var (
	// ErrRateLimited means too many issuance attempts in the current window.
	ErrRateLimited = errors.New("rate limited")
	// ErrSendFailed means the code was stored but delivery failed.
	ErrSendFailed = errors.New("failed to send OTP")
	// ErrExpired means no stored code exists (never issued, TTL elapsed,
	// or already consumed).
	ErrExpired = errors.New("OTP expired or not found")
	// ErrInvalidCode means a stored code exists but does not match.
	ErrInvalidCode = errors.New("invalid OTP")
	// ErrTooManyAttempts means the attempt ceiling was exceeded; a new code
	// must be requested.
	ErrTooManyAttempts = errors.New("too many attempts")
	// ErrUnknownChannel means the channel has no verification flow.
	ErrUnknownChannel = errors.New("unknown verification channel")
)
