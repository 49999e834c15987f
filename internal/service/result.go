package service

// Kind classifies an operation outcome so callers can branch without
// matching message strings.
type Kind string

const (
	KindOK              Kind = "ok"
	KindRateLimited     Kind = "rate_limited"
	KindSendFailed      Kind = "send_failed"
	KindExpired         Kind = "expired"
	KindInvalidCode     Kind = "invalid_code"
	KindTooManyAttempts Kind = "too_many_attempts"
	KindInvalidInput    Kind = "invalid_input"
	KindInternalError   Kind = "internal_error"
)

// Result is the uniform outcome returned at the service boundary. Message
// is the short, non-technical string shown to end users; diagnostics stay
// in the server logs.
type Result struct {
	Success bool   `json:"success"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func ok(message string) Result {
	return Result{Success: true, Kind: KindOK, Message: message}
}

func failure(kind Kind, message string) Result {
	return Result{Success: false, Kind: kind, Message: message}
}
