// Package event defines the JSON events this service emits to downstream
// consumers (Kafka, analytics, audit). Identifiers never leave the service
// in the clear; events carry a SHA-256 hash instead.
package event

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	TypeOTPIssued   = "otp_issued"
	TypeOTPVerified = "otp_verified"
	TypeOTPFailed   = "otp_failed"
	TypeMessageSent = "message_sent"
	TypeAlertRaised = "alert_raised"
)

// Publisher is the message-bus capability the service depends on.
// *client.KafkaProducer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload interface{}) error
}

// VerificationEvent records one issue/verify/send outcome.
type VerificationEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Channel        string    `json:"channel"`
	IdentifierHash string    `json:"identifier_hash"`
	Outcome        string    `json:"outcome"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewVerificationEvent builds an event with a fresh ID and hashed identifier.
func NewVerificationEvent(eventType, channel, identifier, outcome string) VerificationEvent {
	return VerificationEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Channel:        channel,
		IdentifierHash: HashIdentifier(identifier),
		Outcome:        outcome,
		OccurredAt:     time.Now().UTC(),
	}
}

// AlertEvent mirrors a raised monitoring alert onto the bus.
type AlertEvent struct {
	ID        string                 `json:"id"`
	AlertType string                 `json:"alert_type"`
	Context   map[string]interface{} `json:"context"`
	RaisedAt  time.Time              `json:"raised_at"`
}

// HashIdentifier normalizes and hashes an email or phone identifier so
// events and audit rows never contain raw contact details.
func HashIdentifier(identifier string) string {
	normalized := strings.ToLower(strings.TrimSpace(identifier))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
