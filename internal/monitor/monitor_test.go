package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/event"
	"verification-service/internal/store"
)

type captureIndexer struct {
	index string
	docs  []interface{}
}

func (c *captureIndexer) IndexDocument(_ context.Context, index, _ string, doc interface{}) error {
	c.index = index
	c.docs = append(c.docs, doc)
	return nil
}

type capturePublisher struct {
	topic    string
	payloads []interface{}
}

func (c *capturePublisher) Publish(_ context.Context, topic, _ string, payload interface{}) error {
	c.topic = topic
	c.payloads = append(c.payloads, payload)
	return nil
}

func newTestMonitor(t *testing.T) (*Monitor, *store.MemoryKV, *time.Time) {
	t.Helper()

	kv := store.NewMemoryKV(0)
	t.Cleanup(kv.Close)

	current := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	kv.SetClock(func() time.Time { return current })

	return New(kv, zap.NewNop()), kv, &current
}

func alertCount(t *testing.T, kv store.KV) int {
	t.Helper()
	keys, err := kv.Keys(context.Background(), alertPrefix+"*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	return len(keys)
}

func TestFailedVerificationThreshold(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < failedVerificationThreshold-1; i++ {
		m.RecordFailedVerification(ctx, "email", "user@example.com")
	}
	if got := alertCount(t, kv); got != 0 {
		t.Fatalf("alert raised below threshold: %d records", got)
	}

	m.RecordFailedVerification(ctx, "email", "user@example.com")
	if got := alertCount(t, kv); got != 1 {
		t.Errorf("got %d alert records at threshold, want 1", got)
	}
}

func TestSuspiciousActivityThreshold(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < suspiciousThreshold; i++ {
		m.RecordSuspiciousActivity(ctx, "malformed_identifier", "203.0.113.7")
	}
	if got := alertCount(t, kv); got != 1 {
		t.Errorf("got %d alert records, want 1", got)
	}
}

func TestRateLimitThreshold(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < rateLimitThreshold-1; i++ {
		m.RecordRateLimitExceeded(ctx, "email", "user@example.com")
	}
	if got := alertCount(t, kv); got != 0 {
		t.Fatalf("alert raised below threshold: %d records", got)
	}

	m.RecordRateLimitExceeded(ctx, "email", "user@example.com")
	if got := alertCount(t, kv); got != 1 {
		t.Errorf("got %d alert records at threshold, want 1", got)
	}
}

func TestCountersAreScopedToIdentifier(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < failedVerificationThreshold-1; i++ {
		m.RecordFailedVerification(ctx, "email", "a@example.com")
		m.RecordFailedVerification(ctx, "email", "b@example.com")
	}
	if got := alertCount(t, kv); got != 0 {
		t.Errorf("independent identifiers pooled into one threshold: %d alerts", got)
	}
}

func TestCounterWindowExpiry(t *testing.T) {
	m, kv, clock := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < rateLimitThreshold-1; i++ {
		m.RecordRateLimitExceeded(ctx, "email", "user@example.com")
	}

	// The window runs from the first event; once it lapses the count restarts.
	*clock = clock.Add(rateLimitWindow + time.Minute)
	m.RecordRateLimitExceeded(ctx, "email", "user@example.com")
	if got := alertCount(t, kv); got != 0 {
		t.Errorf("stale counter carried across windows: %d alerts", got)
	}
}

func TestLargeTransaction(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordTransaction(ctx, "user-1", largeTransactionLimit)
	if got := alertCount(t, kv); got != 0 {
		t.Fatalf("alert raised at the limit: %d records", got)
	}

	m.RecordTransaction(ctx, "user-1", largeTransactionLimit+1)
	if got := alertCount(t, kv); got != 1 {
		t.Errorf("got %d alert records above the limit, want 1", got)
	}
}

func TestRaiseAlertPersistsRecord(t *testing.T) {
	m, kv, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RaiseAlert(ctx, AlertSuspiciousActivity, map[string]interface{}{"ip": "203.0.113.7"})

	keys, err := kv.Keys(ctx, alertPrefix+AlertSuspiciousActivity+":*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("got %d alert records, want 1", len(keys))
	}

	raw, err := kv.Get(ctx, keys[0])
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var alert Alert
	if err := json.Unmarshal([]byte(raw), &alert); err != nil {
		t.Fatalf("alert record is not valid JSON: %v", err)
	}
	if alert.Type != AlertSuspiciousActivity {
		t.Errorf("alert type %q, want %q", alert.Type, AlertSuspiciousActivity)
	}
	if alert.ID == "" {
		t.Error("alert has no ID")
	}
}

func TestRaiseAlertFansOutToSinks(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	indexer := &captureIndexer{}
	publisher := &capturePublisher{}
	m.WithAlertIndexer(indexer, "verification-alerts")
	m.WithPublisher(publisher, "verification.alerts")

	m.RaiseAlert(ctx, AlertLargeTransaction, map[string]interface{}{"amount": 2_000_000})

	if len(indexer.docs) != 1 || indexer.index != "verification-alerts" {
		t.Errorf("indexer got %d docs in %q, want 1 in verification-alerts",
			len(indexer.docs), indexer.index)
	}
	if len(publisher.payloads) != 1 || publisher.topic != "verification.alerts" {
		t.Errorf("publisher got %d payloads on %q, want 1 on verification.alerts",
			len(publisher.payloads), publisher.topic)
	}
	if ev, ok := publisher.payloads[0].(event.AlertEvent); !ok || ev.AlertType != AlertLargeTransaction {
		t.Errorf("published payload %#v, want AlertEvent of type %s",
			publisher.payloads[0], AlertLargeTransaction)
	}
}

func TestVerificationStats(t *testing.T) {
	m, _, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordFailedVerification(ctx, "email", "a@example.com")
	m.RecordFailedVerification(ctx, "email", "b@example.com")
	m.RecordSuspiciousActivity(ctx, "malformed_code", "203.0.113.7")
	m.RecordRateLimitExceeded(ctx, "phone", "+15551234567")
	m.RaiseAlert(ctx, AlertLargeTransaction, nil)

	stats, err := m.VerificationStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.FailedVerifications != 2 {
		t.Errorf("failedVerifications = %d, want 2", stats.FailedVerifications)
	}
	if stats.SuspiciousIPs != 1 {
		t.Errorf("suspiciousIPs = %d, want 1", stats.SuspiciousIPs)
	}
	if stats.RateLimitExceeded != 1 {
		t.Errorf("rateLimitExceeded = %d, want 1", stats.RateLimitExceeded)
	}
	if stats.Alerts != 1 {
		t.Errorf("alerts = %d, want 1", stats.Alerts)
	}
}
