package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"verification-service/internal/analytics"
	"verification-service/internal/event"
	"verification-service/internal/monitor"
	"verification-service/internal/otp"
	"verification-service/internal/ratelimit"
	"verification-service/internal/repository/scylla"
	"verification-service/internal/sender"
	"verification-service/internal/util"
)

// User-facing messages. Nothing technical crosses this boundary.
const (
	msgOTPSent         = "OTP sent successfully"
	msgOTPVerified     = "OTP verified successfully"
	msgMessageSent     = "Message sent successfully"
	msgRateLimited     = "Too many requests. Please try again later."
	msgSendFailed      = "Failed to send OTP"
	msgSendMsgFailed   = "Failed to send message"
	msgExpired         = "OTP expired or not found"
	msgInvalidCode     = "Invalid OTP"
	msgTooManyAttempts = "Too many attempts. Please request a new OTP."
	msgInternal        = "Something went wrong. Please try again."
)

// VerificationService is the subsystem boundary: every operation returns a
// Result and never an error, and every failure path feeds monitoring. The
// publisher, recorder and audit sinks are optional; nil disables them.
type VerificationService struct {
	engine      *otp.Engine
	limiter     *ratelimit.Limiter
	senders     *sender.Registry
	monitor     *monitor.Monitor
	publisher   event.Publisher
	eventsTopic string
	recorder    *analytics.Recorder
	audit       scylla.AuditRepository
	logger      *zap.Logger
}

func NewVerificationService(
	engine *otp.Engine,
	limiter *ratelimit.Limiter,
	senders *sender.Registry,
	mon *monitor.Monitor,
	logger *zap.Logger,
) *VerificationService {
	return &VerificationService{
		engine:  engine,
		limiter: limiter,
		senders: senders,
		monitor: mon,
		logger:  logger,
	}
}

// WithEventSinks attaches the optional downstream sinks.
func (s *VerificationService) WithEventSinks(
	publisher event.Publisher,
	eventsTopic string,
	recorder *analytics.Recorder,
	audit scylla.AuditRepository,
) *VerificationService {
	s.publisher = publisher
	s.eventsTopic = eventsTopic
	s.recorder = recorder
	s.audit = audit
	return s
}

// IssueOTP requests a new code for the channel and identifier.
func (s *VerificationService) IssueOTP(ctx context.Context, channel, identifier string) Result {
	err := s.engine.Issue(ctx, channel, identifier)
	switch {
	case err == nil:
		s.emit(ctx, event.TypeOTPIssued, channel, identifier, "issued")
		return ok(msgOTPSent)
	case errors.Is(err, otp.ErrRateLimited):
		s.emit(ctx, event.TypeOTPFailed, channel, identifier, "rate_limited")
		return failure(KindRateLimited, msgRateLimited)
	case errors.Is(err, otp.ErrSendFailed):
		s.emit(ctx, event.TypeOTPFailed, channel, identifier, "send_failed")
		return failure(KindSendFailed, msgSendFailed)
	default:
		s.logger.Error("OTP issuance failed", util.ErrorField(err))
		return failure(KindInternalError, msgInternal)
	}
}

// VerifyOTP checks a submitted code against the stored one.
func (s *VerificationService) VerifyOTP(ctx context.Context, channel, identifier, code string) Result {
	err := s.engine.Verify(ctx, channel, identifier, code)
	switch {
	case err == nil:
		s.emit(ctx, event.TypeOTPVerified, channel, identifier, "verified")
		return ok(msgOTPVerified)
	case errors.Is(err, otp.ErrTooManyAttempts):
		s.emit(ctx, event.TypeOTPFailed, channel, identifier, "too_many_attempts")
		return failure(KindTooManyAttempts, msgTooManyAttempts)
	case errors.Is(err, otp.ErrExpired):
		s.emit(ctx, event.TypeOTPFailed, channel, identifier, "expired")
		return failure(KindExpired, msgExpired)
	case errors.Is(err, otp.ErrInvalidCode):
		s.emit(ctx, event.TypeOTPFailed, channel, identifier, "invalid_code")
		return failure(KindInvalidCode, msgInvalidCode)
	default:
		s.logger.Error("OTP verification failed", util.ErrorField(err))
		return failure(KindInternalError, msgInternal)
	}
}

// SendFreeTextMessage delivers a WhatsApp notification. WhatsApp has no
// verification flow; this is send-only, but still throttled per identifier.
func (s *VerificationService) SendFreeTextMessage(ctx context.Context, identifier, body string) Result {
	if err := s.limiter.Consume(sender.ChannelWhatsApp + ":" + identifier); err != nil {
		s.monitor.RecordRateLimitExceeded(ctx, sender.ChannelWhatsApp, identifier)
		return failure(KindRateLimited, msgRateLimited)
	}

	if err := s.senders.SendMessage(ctx, identifier, body); err != nil {
		s.logger.Error("Failed to send WhatsApp message", util.ErrorField(err))
		s.monitor.RecordFailedVerification(ctx, sender.ChannelWhatsApp, identifier)
		return failure(KindSendFailed, msgSendMsgFailed)
	}

	s.emit(ctx, event.TypeMessageSent, sender.ChannelWhatsApp, identifier, "sent")
	return ok(msgMessageSent)
}

// RecordTransaction runs the large-transaction check for a payment the
// portal just processed.
func (s *VerificationService) RecordTransaction(ctx context.Context, userID string, amount int64) Result {
	s.monitor.RecordTransaction(ctx, userID, amount)
	return ok("Transaction recorded")
}

// RecordSuspiciousActivity counts a suspicious request against its source IP.
func (s *VerificationService) RecordSuspiciousActivity(ctx context.Context, activityType, ip string) {
	s.monitor.RecordSuspiciousActivity(ctx, activityType, ip)
}

// VerificationStats returns the aggregate monitoring view.
func (s *VerificationService) VerificationStats(ctx context.Context) (*monitor.Stats, error) {
	return s.monitor.VerificationStats(ctx)
}

// RecentAuditEvents returns the durable trail for an identifier, or nil
// when the audit sink is not configured.
func (s *VerificationService) RecentAuditEvents(ctx context.Context, identifier string, limit int) ([]scylla.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	return s.audit.RecentEvents(ctx, event.HashIdentifier(identifier), limit)
}

// AuditEnabled reports whether the durable audit trail is configured.
func (s *VerificationService) AuditEnabled() bool {
	return s.audit != nil
}

// emit fans one outcome out to the optional sinks, best-effort.
func (s *VerificationService) emit(ctx context.Context, eventType, channel, identifier, outcome string) {
	ev := event.NewVerificationEvent(eventType, channel, identifier, outcome)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, s.eventsTopic, ev.IdentifierHash, ev); err != nil {
			s.logger.Warn("Failed to publish verification event", util.ErrorField(err))
		}
	}
	if s.recorder != nil {
		s.recorder.Record(ev)
	}
	if s.audit != nil {
		if err := s.audit.RecordEvent(ctx, ev); err != nil {
			s.logger.Warn("Failed to write audit event", util.ErrorField(err))
		}
	}
}
