// Package otp implements the verification state machine: per (channel,
// identifier) a code moves NONE -> ISSUED -> {VERIFIED | EXPIRED | LOCKED},
// where EXPIRED and LOCKED return to ISSUED on reissue.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"verification-service/internal/store"
	"verification-service/internal/util"
)

const codeSpace = 1_000_000 // 6-digit codes, 000000-999999

// Limiter gates code issuance. *ratelimit.Limiter implements it.
type Limiter interface {
	Consume(identifier string) error
}

// Sender dispatches a freshly issued code. *sender.Registry implements it.
type Sender interface {
	SendOTP(ctx context.Context, channel, identifier, code string) error
}

// Reporter receives failure events for monitoring. *monitor.Monitor
// implements it.
type Reporter interface {
	RecordFailedVerification(ctx context.Context, channel, identifier string)
	RecordRateLimitExceeded(ctx context.Context, limitType, identifier string)
}

// Engine issues and verifies one-time codes backed by the KV store.
type Engine struct {
	kv          store.KV
	limiter     Limiter
	sender      Sender
	reporter    Reporter
	logger      *zap.Logger
	ttl         time.Duration
	maxAttempts int
}

func NewEngine(
	kv store.KV,
	limiter Limiter,
	otpSender Sender,
	reporter Reporter,
	logger *zap.Logger,
	ttl time.Duration,
	maxAttempts int,
) *Engine {
	return &Engine{
		kv:          kv,
		limiter:     limiter,
		sender:      otpSender,
		reporter:    reporter,
		logger:      logger,
		ttl:         ttl,
		maxAttempts: maxAttempts,
	}
}

func otpKey(channel, identifier string) string {
	return fmt.Sprintf("%s_otp:%s", channel, identifier)
}

func attemptsKey(channel, identifier string) string {
	return otpKey(channel, identifier) + ":attempts"
}

// GenerateCode returns a uniformly random six-digit code, zero-padded and
// kept as text so leading zeros survive.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Issue generates a code, stores it with the configured TTL, resets the
// attempt counter, and dispatches it over the channel's transport. A new
// code always replaces any live one for the same (channel, identifier).
func (e *Engine) Issue(ctx context.Context, channel, identifier string) error {
	if channel != "email" && channel != "phone" {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	if err := e.limiter.Consume(channel + ":" + identifier); err != nil {
		e.logger.Warn("OTP issuance rate limited",
			util.String("channel", channel))
		e.reporter.RecordRateLimitExceeded(ctx, channel, identifier)
		return ErrRateLimited
	}

	code, err := GenerateCode()
	if err != nil {
		return err
	}

	key := otpKey(channel, identifier)
	if err := e.kv.Set(ctx, key, code, e.ttl); err != nil {
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	if _, err := e.kv.Delete(ctx, attemptsKey(channel, identifier)); err != nil {
		return fmt.Errorf("failed to reset attempts: %w", err)
	}

	if err := e.sender.SendOTP(ctx, channel, identifier, code); err != nil {
		e.logger.Error("Failed to send OTP",
			util.String("channel", channel),
			util.ErrorField(err))
		e.reporter.RecordFailedVerification(ctx, channel, identifier)
		return ErrSendFailed
	}

	e.logger.Info("OTP issued",
		util.String("channel", channel),
		util.Duration("ttl", e.ttl))
	return nil
}

// Verify checks a submitted code. Every attempt increments the counter
// first; once it passes the ceiling the request is rejected regardless of
// whether the code matches. A matching code is consumed atomically so it
// can never verify twice.
func (e *Engine) Verify(ctx context.Context, channel, identifier, code string) error {
	if channel != "email" && channel != "phone" {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}

	key := otpKey(channel, identifier)
	aKey := attemptsKey(channel, identifier)

	stored, err := e.kv.Get(ctx, key)
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		return fmt.Errorf("failed to read OTP: %w", err)
	}
	hasCode := err == nil

	attempts, err := e.kv.Increment(ctx, aKey)
	if err != nil {
		return fmt.Errorf("failed to count attempt: %w", err)
	}
	// Bound the counter's lifetime to the code's. Without this a stale
	// counter could survive the code and lock out the next issuance cycle.
	if _, err := e.kv.Expire(ctx, aKey, e.ttl); err != nil {
		e.logger.Warn("Failed to bound attempt counter",
			util.String("channel", channel),
			util.ErrorField(err))
	}

	if attempts > int64(e.maxAttempts) {
		e.reporter.RecordFailedVerification(ctx, channel, identifier)
		return ErrTooManyAttempts
	}

	if !hasCode {
		return ErrExpired
	}

	if stored != code {
		e.reporter.RecordFailedVerification(ctx, channel, identifier)
		return ErrInvalidCode
	}

	consumed, err := e.kv.CompareAndDelete(ctx, key, code, aKey)
	if err != nil {
		return fmt.Errorf("failed to consume OTP: %w", err)
	}
	if !consumed {
		// Lost the race to a concurrent verify; the code is gone.
		return ErrExpired
	}

	e.logger.Info("OTP verified", util.String("channel", channel))
	return nil
}
