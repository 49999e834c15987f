package service

import (
	"go.uber.org/zap"

	"verification-service/internal/analytics"
	"verification-service/internal/event"
	"verification-service/internal/monitor"
	"verification-service/internal/otp"
	"verification-service/internal/ratelimit"
	"verification-service/internal/repository/scylla"
	"verification-service/internal/sender"
)

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	engine      *otp.Engine
	limiter     *ratelimit.Limiter
	senders     *sender.Registry
	monitor     *monitor.Monitor
	publisher   event.Publisher
	eventsTopic string
	recorder    *analytics.Recorder
	audit       scylla.AuditRepository
	logger      *zap.Logger

	verificationService *VerificationService
}

func NewServiceFactory(
	engine *otp.Engine,
	limiter *ratelimit.Limiter,
	senders *sender.Registry,
	mon *monitor.Monitor,
	publisher event.Publisher,
	eventsTopic string,
	recorder *analytics.Recorder,
	audit scylla.AuditRepository,
	logger *zap.Logger,
) *ServiceFactory {
	return &ServiceFactory{
		engine:      engine,
		limiter:     limiter,
		senders:     senders,
		monitor:     mon,
		publisher:   publisher,
		eventsTopic: eventsTopic,
		recorder:    recorder,
		audit:       audit,
		logger:      logger,
	}
}

// VerificationService returns the verification service instance (singleton)
func (f *ServiceFactory) VerificationService() *VerificationService {
	if f.verificationService == nil {
		f.verificationService = NewVerificationService(
			f.engine,
			f.limiter,
			f.senders,
			f.monitor,
			f.logger,
		).WithEventSinks(f.publisher, f.eventsTopic, f.recorder, f.audit)
	}
	return f.verificationService
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.recorder != nil {
		f.recorder.Close()
	}
}
