package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"verification-service/internal/event"
	"verification-service/internal/util"
)

// Audit rows are partitioned by (murmur3 bucket, identifier hash) so a hot
// identifier cannot concentrate a partition.
const auditBuckets = 64

// AuditEntry is one row of the durable verification trail.
type AuditEntry struct {
	EventTime time.Time `json:"event_time"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Channel   string    `json:"channel"`
	Outcome   string    `json:"outcome"`
}

// AuditRepository persists and reads the verification audit trail.
type AuditRepository interface {
	RecordEvent(ctx context.Context, ev event.VerificationEvent) error
	RecentEvents(ctx context.Context, identifierHash string, limit int) ([]AuditEntry, error)
}

type auditRepository struct {
	client *ScyllaClient
	logger *zap.Logger
}

func NewAuditRepository(client *ScyllaClient, logger *zap.Logger) AuditRepository {
	return &auditRepository{client: client, logger: logger}
}

func eventBucket(identifierHash string) int {
	return int(murmur3.Sum64([]byte(identifierHash)) % auditBuckets)
}

func (r *auditRepository) RecordEvent(ctx context.Context, ev event.VerificationEvent) error {
	query := r.client.Prepared.InsertEvent.WithContext(ctx).Bind(
		eventBucket(ev.IdentifierHash),
		ev.IdentifierHash,
		ev.OccurredAt,
		ev.ID,
		ev.Type,
		ev.Channel,
		ev.Outcome,
		ev.OccurredAt.Format("2006-01-02"),
	)

	if err := query.Exec(); err != nil {
		r.logger.Error("Failed to record audit event",
			util.String("event_type", ev.Type),
			util.ErrorField(err))
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (r *auditRepository) RecentEvents(ctx context.Context, identifierHash string, limit int) ([]AuditEntry, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := r.client.Prepared.SelectRecent.WithContext(ctx).Bind(
		eventBucket(identifierHash), identifierHash, limit)

	iter := query.Iter()
	var entries []AuditEntry
	var entry AuditEntry
	for iter.Scan(&entry.EventTime, &entry.EventID, &entry.EventType, &entry.Channel, &entry.Outcome) {
		entries = append(entries, entry)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return entries, nil
}
