package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verification-service/internal/analytics"
	"verification-service/internal/client"
	"verification-service/internal/config"
	"verification-service/internal/event"
	"verification-service/internal/monitor"
	"verification-service/internal/otp"
	"verification-service/internal/ratelimit"
	"verification-service/internal/repository/scylla"
	"verification-service/internal/sender"
	"verification-service/internal/service"
	"verification-service/internal/store"
	"verification-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Core components
	kv       store.KV
	memoryKV *store.MemoryKV
	limiter  *ratelimit.Limiter
	senders  *sender.Registry
	monitor  *monitor.Monitor
	engine   *otp.Engine
	recorder *analytics.Recorder
	audit    scylla.AuditRepository

	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeCore(); err != nil {
		return nil, fmt.Errorf("failed to initialize core components: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("store_backend", cfg.Store.Backend),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("clickhouse_enabled", factory.clickhouseClient != nil),
		util.Bool("elasticsearch_enabled", factory.esClient != nil),
		util.Bool("scylla_enabled", factory.scyllaClient != nil),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health checks.
// Optional sinks that fail to come up are fatal in production and disabled
// with a warning elsewhere.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis backs the KV store only when selected
	if f.config.Store.Backend == "redis" {
		redisClient, err := client.NewRedisClient(f.config, util.Get())
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		util.Info("Redis client initialized and healthy")
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	// ClickHouse
	if f.config.Clickhouse.Enabled {
		if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else if err := chClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		} else {
			f.clickhouseClient = chClient
			util.Info("ClickHouse client initialized and healthy")
		}
	}

	// Elasticsearch
	if f.config.Elasticsearch.Enabled {
		if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else if err := esClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
		} else {
			f.esClient = esClient
			util.Info("Elasticsearch client initialized and healthy")
		}
	}

	// ScyllaDB
	if f.config.Scylla.Enabled {
		if scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else if err := scyllaClient.HealthCheck(); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			f.scyllaClient = scyllaClient
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning - sink disabled", util.ErrorField(err))
		}
	}

	return nil
}

// initializeCore wires the KV store, limiter, senders, monitor and engine.
func (f *Factory) initializeCore() error {
	switch f.config.Store.Backend {
	case "redis":
		f.kv = store.NewRedisKV(f.redisClient)
	case "memory":
		f.memoryKV = store.NewMemoryKV(f.config.Store.SweepInterval)
		f.kv = f.memoryKV
	default:
		return fmt.Errorf("unknown store backend: %q", f.config.Store.Backend)
	}

	f.limiter = ratelimit.New(f.config.RateLimit.Points, f.config.RateLimit.Window)

	emailSender := sender.NewSMTPSender(f.config.SMTP)
	textSender := sender.NewProviderSender(f.config.Text)
	f.senders = sender.NewRegistry(emailSender, textSender)

	f.monitor = monitor.New(f.kv, util.Get())
	if f.esClient != nil {
		f.monitor.WithAlertIndexer(f.esClient, f.config.Elasticsearch.AlertIndex)
	}
	if f.kafkaProducer != nil {
		f.monitor.WithPublisher(f.kafkaProducer, f.config.Kafka.AlertsTopic)
	}

	f.engine = otp.NewEngine(
		f.kv,
		f.limiter,
		f.senders,
		f.monitor,
		util.Get(),
		f.config.OTP.TTL,
		f.config.OTP.MaxAttempts,
	)

	if f.clickhouseClient != nil {
		f.recorder = analytics.NewRecorder(
			f.clickhouseClient,
			util.Get(),
			f.config.Clickhouse.BatchSize,
			f.config.Clickhouse.FlushInterval,
		)
	}
	if f.scyllaClient != nil {
		f.audit = scylla.NewAuditRepository(f.scyllaClient, util.Get())
	}

	return nil
}

// ServiceFactory returns the service layer factory (singleton)
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		var publisher event.Publisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		f.serviceFactory = service.NewServiceFactory(
			f.engine,
			f.limiter,
			f.senders,
			f.monitor,
			publisher,
			f.config.Kafka.EventsTopic,
			f.recorder,
			f.audit,
			util.Get(),
		)
	}
	return f.serviceFactory
}

// HealthCheck probes every initialized dependency.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Store.Backend == "redis" {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

// HealthStatus renders the health view served on /health.
func (f *Factory) HealthStatus() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status := map[string]string{"store": "healthy"}
	for name, err := range f.HealthCheck(ctx) {
		status[name] = err.Error()
		if name == "redis" {
			status["store"] = err.Error()
		}
	}
	for _, name := range []string{"redis", "scylla", "elasticsearch", "clickhouse", "kafka"} {
		if _, reported := status[name]; !reported && f.clientInitialized(name) {
			status[name] = "healthy"
		}
	}
	return status
}

func (f *Factory) clientInitialized(name string) bool {
	switch name {
	case "redis":
		return f.redisClient != nil
	case "scylla":
		return f.scyllaClient != nil
	case "elasticsearch":
		return f.esClient != nil
	case "clickhouse":
		return f.clickhouseClient != nil
	case "kafka":
		return f.kafkaProducer != nil
	}
	return false
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.memoryKV != nil {
			f.memoryKV.Close()
			util.Info("In-memory store closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Store() store.KV {
	return f.kv
}

func (f *Factory) ESClient() *client.ESClient {
	return f.esClient
}
