package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/event"
	"verification-service/internal/monitor"
	"verification-service/internal/otp"
	"verification-service/internal/ratelimit"
	"verification-service/internal/sender"
	"verification-service/internal/store"
)

type fakeEmailSender struct {
	lastCode string
	fail     error
}

func (s *fakeEmailSender) SendOTP(_ context.Context, _, code string) error {
	if s.fail != nil {
		return s.fail
	}
	s.lastCode = code
	return nil
}

type fakeTextSender struct {
	lastCode string
	lastBody string
	fail     error
}

func (s *fakeTextSender) SendOTP(_ context.Context, _, code string) error {
	if s.fail != nil {
		return s.fail
	}
	s.lastCode = code
	return nil
}

func (s *fakeTextSender) SendMessage(_ context.Context, _, body string) error {
	if s.fail != nil {
		return s.fail
	}
	s.lastBody = body
	return nil
}

type capturePublisher struct {
	topics   []string
	payloads []interface{}
}

func (c *capturePublisher) Publish(_ context.Context, topic, _ string, payload interface{}) error {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload)
	return nil
}

type serviceFixture struct {
	service   *VerificationService
	kv        *store.MemoryKV
	email     *fakeEmailSender
	text      *fakeTextSender
	publisher *capturePublisher
	clock     *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	kv := store.NewMemoryKV(0)
	t.Cleanup(kv.Close)

	current := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := &current
	kv.SetClock(func() time.Time { return *clock })

	limiter := ratelimit.New(5, time.Minute)
	limiter.SetClock(func() time.Time { return *clock })

	email := &fakeEmailSender{}
	text := &fakeTextSender{}
	senders := sender.NewRegistry(email, text)

	logger := zap.NewNop()
	mon := monitor.New(kv, logger)
	engine := otp.NewEngine(kv, limiter, senders, mon, logger, 5*time.Minute, 3)

	publisher := &capturePublisher{}
	svc := NewVerificationService(engine, limiter, senders, mon, logger).
		WithEventSinks(publisher, "verification.events", nil, nil)

	return &serviceFixture{
		service:   svc,
		kv:        kv,
		email:     email,
		text:      text,
		publisher: publisher,
		clock:     clock,
	}
}

func lastEvent(t *testing.T, p *capturePublisher) event.VerificationEvent {
	t.Helper()
	if len(p.payloads) == 0 {
		t.Fatal("no events published")
	}
	ev, ok := p.payloads[len(p.payloads)-1].(event.VerificationEvent)
	if !ok {
		t.Fatalf("published payload %#v is not a VerificationEvent", p.payloads[len(p.payloads)-1])
	}
	return ev
}

func TestIssueOTPSuccess(t *testing.T) {
	f := newServiceFixture(t)

	result := f.service.IssueOTP(context.Background(), "email", "user@example.com")
	if !result.Success || result.Kind != KindOK {
		t.Fatalf("got %+v, want success/ok", result)
	}
	if result.Message != msgOTPSent {
		t.Errorf("message %q, want %q", result.Message, msgOTPSent)
	}
	if f.email.lastCode == "" {
		t.Error("no code was sent")
	}

	ev := lastEvent(t, f.publisher)
	if ev.Type != event.TypeOTPIssued || ev.Outcome != "issued" {
		t.Errorf("published %s/%s, want otp_issued/issued", ev.Type, ev.Outcome)
	}
	if ev.IdentifierHash == "user@example.com" {
		t.Error("event carries the raw identifier")
	}
}

func TestIssueOTPRateLimited(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if result := f.service.IssueOTP(ctx, "email", "user@example.com"); !result.Success {
			t.Fatalf("issue %d failed: %+v", i+1, result)
		}
	}

	result := f.service.IssueOTP(ctx, "email", "user@example.com")
	if result.Success || result.Kind != KindRateLimited {
		t.Fatalf("got %+v, want rate_limited", result)
	}
	if result.Message != msgRateLimited {
		t.Errorf("message %q, want %q", result.Message, msgRateLimited)
	}
}

func TestIssueOTPSendFailure(t *testing.T) {
	f := newServiceFixture(t)

	f.email.fail = errors.New("smtp down")
	result := f.service.IssueOTP(context.Background(), "email", "user@example.com")
	if result.Success || result.Kind != KindSendFailed {
		t.Fatalf("got %+v, want send_failed", result)
	}
}

func TestVerifyOTPOutcomes(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.service.IssueOTP(ctx, "email", "user@example.com")
	code := f.email.lastCode

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	if result := f.service.VerifyOTP(ctx, "email", "user@example.com", wrong); result.Kind != KindInvalidCode {
		t.Errorf("wrong code gave %+v, want invalid_code", result)
	}

	result := f.service.VerifyOTP(ctx, "email", "user@example.com", code)
	if !result.Success || result.Kind != KindOK {
		t.Fatalf("got %+v, want success/ok", result)
	}

	// Consumed; a replay reports expiry.
	if result := f.service.VerifyOTP(ctx, "email", "user@example.com", code); result.Kind != KindExpired {
		t.Errorf("replay gave %+v, want expired", result)
	}
}

func TestVerifyOTPTooManyAttempts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.service.IssueOTP(ctx, "email", "user@example.com")
	code := f.email.lastCode
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		f.service.VerifyOTP(ctx, "email", "user@example.com", wrong)
	}

	result := f.service.VerifyOTP(ctx, "email", "user@example.com", code)
	if result.Success || result.Kind != KindTooManyAttempts {
		t.Fatalf("got %+v, want too_many_attempts", result)
	}
	if result.Message != msgTooManyAttempts {
		t.Errorf("message %q, want %q", result.Message, msgTooManyAttempts)
	}
}

func TestVerifyOTPExpired(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.service.IssueOTP(ctx, "email", "user@example.com")
	code := f.email.lastCode

	*f.clock = f.clock.Add(6 * time.Minute)
	result := f.service.VerifyOTP(ctx, "email", "user@example.com", code)
	if result.Success || result.Kind != KindExpired {
		t.Fatalf("got %+v, want expired", result)
	}
	if result.Message != msgExpired {
		t.Errorf("message %q, want %q", result.Message, msgExpired)
	}
}

func TestSendFreeTextMessage(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	result := f.service.SendFreeTextMessage(ctx, "+15551234567", "Your membership is approved")
	if !result.Success || result.Kind != KindOK {
		t.Fatalf("got %+v, want success/ok", result)
	}
	if f.text.lastBody != "Your membership is approved" {
		t.Errorf("sent body %q", f.text.lastBody)
	}

	ev := lastEvent(t, f.publisher)
	if ev.Type != event.TypeMessageSent {
		t.Errorf("published %s, want message_sent", ev.Type)
	}
}

func TestSendFreeTextMessageThrottled(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if result := f.service.SendFreeTextMessage(ctx, "+15551234567", "hi"); !result.Success {
			t.Fatalf("send %d failed: %+v", i+1, result)
		}
	}
	result := f.service.SendFreeTextMessage(ctx, "+15551234567", "hi")
	if result.Success || result.Kind != KindRateLimited {
		t.Fatalf("got %+v, want rate_limited", result)
	}
}

func TestSendFreeTextMessageFailure(t *testing.T) {
	f := newServiceFixture(t)

	f.text.fail = errors.New("provider unavailable")
	result := f.service.SendFreeTextMessage(context.Background(), "+15551234567", "hi")
	if result.Success || result.Kind != KindSendFailed {
		t.Fatalf("got %+v, want send_failed", result)
	}
}

func TestRecordTransaction(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if result := f.service.RecordTransaction(ctx, "user-1", 2_000_000); !result.Success {
		t.Fatalf("got %+v, want success", result)
	}

	keys, err := f.kv.Keys(ctx, "alert:large_transaction:*")
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("got %d large-transaction alerts, want 1", len(keys))
	}
}

func TestVerificationStats(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.service.RecordSuspiciousActivity(ctx, "malformed_code", "203.0.113.7")

	stats, err := f.service.VerificationStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.SuspiciousIPs != 1 {
		t.Errorf("suspiciousIPs = %d, want 1", stats.SuspiciousIPs)
	}
}

func TestAuditDisabled(t *testing.T) {
	f := newServiceFixture(t)

	if f.service.AuditEnabled() {
		t.Error("audit reported enabled with no sink")
	}
	entries, err := f.service.RecentAuditEvents(context.Background(), "user@example.com", 10)
	if err != nil {
		t.Fatalf("audit read failed: %v", err)
	}
	if entries != nil {
		t.Errorf("got %v, want nil", entries)
	}
}
