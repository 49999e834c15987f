// Package monitor counts verification failures, suspicious activity and
// rate-limit hits in fixed windows, and raises alert records when an event
// class crosses its threshold. Raising an alert persists it and logs it;
// paging humans is someone else's job.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"verification-service/internal/event"
	"verification-service/internal/store"
	"verification-service/internal/util"
)

const (
	failedVerificationPrefix = "failed_verification:"
	suspiciousPrefix         = "suspicious:"
	rateLimitPrefix          = "rate_limit:"
	alertPrefix              = "alert:"

	failedVerificationWindow    = 24 * time.Hour
	failedVerificationThreshold = 5

	suspiciousWindow    = 24 * time.Hour
	suspiciousThreshold = 3

	rateLimitWindow    = time.Hour
	rateLimitThreshold = 10

	// Transactions above this amount always raise an alert.
	largeTransactionLimit = 1_000_000

	alertTTL = 7 * 24 * time.Hour
)

// Alert types.
const (
	AlertFailedVerification = "failed_verification"
	AlertSuspiciousActivity = "suspicious_activity"
	AlertRateLimitExceeded  = "rate_limit_exceeded"
	AlertLargeTransaction   = "large_transaction"
)

// Alert is the persisted record of a crossed threshold. Write-once; it
// expires out of the store after seven days.
type Alert struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context"`
}

// Stats is the aggregate view over live monitoring keys. Expired keys have
// vanished, so these are counts of the current windows, not historical totals.
type Stats struct {
	FailedVerifications int `json:"failedVerifications"`
	SuspiciousIPs       int `json:"suspiciousIPs"`
	RateLimitExceeded   int `json:"rateLimitExceeded"`
	Alerts              int `json:"alerts"`
}

// AlertIndexer is the search-sink capability; *client.ESClient implements it.
type AlertIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

// Monitor tracks countable event classes in the KV store. The Elasticsearch
// indexer and event publisher are optional sinks; a nil value disables them.
type Monitor struct {
	kv          store.KV
	logger      *zap.Logger
	indexer     AlertIndexer
	alertIndex  string
	publisher   event.Publisher
	alertsTopic string
	now         func() time.Time
}

func New(kv store.KV, logger *zap.Logger) *Monitor {
	return &Monitor{
		kv:     kv,
		logger: logger,
		now:    time.Now,
	}
}

// WithAlertIndexer attaches an Elasticsearch sink for raised alerts.
func (m *Monitor) WithAlertIndexer(indexer AlertIndexer, index string) *Monitor {
	m.indexer = indexer
	m.alertIndex = index
	return m
}

// WithPublisher attaches a message-bus sink for raised alerts.
func (m *Monitor) WithPublisher(publisher event.Publisher, topic string) *Monitor {
	m.publisher = publisher
	m.alertsTopic = topic
	return m
}

// RecordFailedVerification counts a failed verification for the identifier
// and raises an alert once the 24h window crosses the threshold.
func (m *Monitor) RecordFailedVerification(ctx context.Context, channel, identifier string) {
	key := fmt.Sprintf("%s%s:%s", failedVerificationPrefix, channel, identifier)
	count := m.bumpCounter(ctx, key, failedVerificationWindow)
	if count >= failedVerificationThreshold {
		m.RaiseAlert(ctx, AlertFailedVerification, map[string]interface{}{
			"channel":    channel,
			"identifier": identifier,
			"count":      count,
		})
	}
}

// RecordSuspiciousActivity counts suspicious activity per source IP.
func (m *Monitor) RecordSuspiciousActivity(ctx context.Context, activityType, ip string) {
	key := fmt.Sprintf("%s%s:%s", suspiciousPrefix, activityType, ip)
	count := m.bumpCounter(ctx, key, suspiciousWindow)
	if count >= suspiciousThreshold {
		m.RaiseAlert(ctx, AlertSuspiciousActivity, map[string]interface{}{
			"activity_type": activityType,
			"ip":            ip,
			"count":         count,
		})
	}
}

// RecordRateLimitExceeded counts issuance throttle hits per identifier.
func (m *Monitor) RecordRateLimitExceeded(ctx context.Context, limitType, identifier string) {
	key := fmt.Sprintf("%s%s:%s", rateLimitPrefix, limitType, identifier)
	count := m.bumpCounter(ctx, key, rateLimitWindow)
	if count >= rateLimitThreshold {
		m.RaiseAlert(ctx, AlertRateLimitExceeded, map[string]interface{}{
			"limit_type": limitType,
			"identifier": identifier,
			"count":      count,
		})
	}
}

// RecordTransaction raises an alert for transactions above the limit.
// No counter is kept; the check is direct.
func (m *Monitor) RecordTransaction(ctx context.Context, userID string, amount int64) {
	if amount <= largeTransactionLimit {
		return
	}
	m.RaiseAlert(ctx, AlertLargeTransaction, map[string]interface{}{
		"user_id": userID,
		"amount":  amount,
	})
}

// bumpCounter increments a window counter, applying the window TTL only on
// the first increment so the window runs from the first event until full
// expiry. Store failures are logged and reported as zero; monitoring must
// never fail a verification request.
func (m *Monitor) bumpCounter(ctx context.Context, key string, windowSize time.Duration) int64 {
	count, err := m.kv.Increment(ctx, key)
	if err != nil {
		m.logger.Error("Failed to increment monitoring counter",
			util.String("key", key),
			util.ErrorField(err))
		return 0
	}
	if count == 1 {
		if _, err := m.kv.Expire(ctx, key, windowSize); err != nil {
			m.logger.Error("Failed to set monitoring counter window",
				util.String("key", key),
				util.ErrorField(err))
		}
	}
	return count
}

// RaiseAlert persists an append-only alert record (TTL 7 days), logs it at
// error severity, and fans out to the optional sinks.
func (m *Monitor) RaiseAlert(ctx context.Context, alertType string, alertContext map[string]interface{}) {
	now := m.now().UTC()
	alert := Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Timestamp: now,
		Context:   alertContext,
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		m.logger.Error("Failed to marshal alert", util.ErrorField(err))
		return
	}

	key := fmt.Sprintf("%s%s:%d", alertPrefix, alertType, now.UnixNano())
	if err := m.kv.Set(ctx, key, string(payload), alertTTL); err != nil {
		m.logger.Error("Failed to persist alert",
			util.String("alert_type", alertType),
			util.ErrorField(err))
	}

	m.logger.Error("Alert raised",
		util.String("alert_type", alertType),
		util.String("alert_id", alert.ID),
		util.Any("context", alertContext),
	)

	if m.indexer != nil {
		if err := m.indexer.IndexDocument(ctx, m.alertIndex, alert.ID, alert); err != nil {
			m.logger.Warn("Failed to index alert",
				util.String("alert_id", alert.ID),
				util.ErrorField(err))
		}
	}

	if m.publisher != nil {
		alertEvent := event.AlertEvent{
			ID:        alert.ID,
			AlertType: alertType,
			Context:   alertContext,
			RaisedAt:  now,
		}
		if err := m.publisher.Publish(ctx, m.alertsTopic, alertType, alertEvent); err != nil {
			m.logger.Warn("Failed to publish alert event",
				util.String("alert_id", alert.ID),
				util.ErrorField(err))
		}
	}
}

// Count returns the number of live keys matching a glob pattern.
func (m *Monitor) Count(ctx context.Context, pattern string) (int, error) {
	keys, err := m.kv.Keys(ctx, pattern)
	if err != nil {
		return 0, fmt.Errorf("failed to count keys for %q: %w", pattern, err)
	}
	return len(keys), nil
}

// VerificationStats gathers the four aggregate counts concurrently.
func (m *Monitor) VerificationStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := m.Count(gctx, failedVerificationPrefix+"*")
		stats.FailedVerifications = n
		return err
	})
	g.Go(func() error {
		n, err := m.Count(gctx, suspiciousPrefix+"*")
		stats.SuspiciousIPs = n
		return err
	})
	g.Go(func() error {
		n, err := m.Count(gctx, rateLimitPrefix+"*")
		stats.RateLimitExceeded = n
		return err
	})
	g.Go(func() error {
		n, err := m.Count(gctx, alertPrefix+"*")
		stats.Alerts = n
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}
