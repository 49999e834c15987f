package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Environment string

	Server        ServerConfig
	Logging       LoggingConfig
	Store         StoreConfig
	Redis         RedisConfig
	OTP           OTPConfig
	RateLimit     RateLimitConfig
	SMTP          SMTPConfig
	Text          TextProviderConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Scylla        ScyllaConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the key-value backend for OTP and monitoring state.
// Backend is "redis" or "memory"; SweepInterval only applies to memory.
type StoreConfig struct {
	Backend       string
	SweepInterval time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
	PoolSize int
}

type OTPConfig struct {
	TTL         time.Duration
	MaxAttempts int
}

type RateLimitConfig struct {
	Points int
	Window time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// TextProviderConfig configures the SMS/WhatsApp gateway. DryRun logs
// messages instead of dialing the provider.
type TextProviderConfig struct {
	APIURL string
	APIKey string
	Sender string
	DryRun bool
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	EventsTopic string
	AlertsTopic string
}

type ClickhouseConfig struct {
	Enabled       bool
	URL           string
	Database      string
	Username      string
	Password      string
	BatchSize     int
	FlushInterval time.Duration
}

type ElasticsearchConfig struct {
	Enabled    bool
	URL        string
	Username   string
	Password   string
	AlertIndex string
}

type ScyllaConfig struct {
	Enabled  bool
	Nodes    []string
	Keyspace string
	Username string
	Password string
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present so local development doesn't need exported vars.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Store: StoreConfig{
			Backend:       getEnv("STORE_BACKEND", "memory"),
			SweepInterval: getEnvDuration("STORE_SWEEP_INTERVAL", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 50),
		},
		OTP: OTPConfig{
			TTL:         getEnvDuration("OTP_TTL", 5*time.Minute),
			MaxAttempts: getEnvInt("OTP_MAX_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			Points: getEnvInt("RATE_LIMIT_POINTS", 5),
			Window: getEnvDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@nitp.example"),
		},
		Text: TextProviderConfig{
			APIURL: getEnv("TEXT_API_URL", "https://api.textprovider.example/v1/messages"),
			APIKey: getEnv("TEXT_API_KEY", ""),
			Sender: getEnv("TEXT_SENDER", ""),
			DryRun: getEnvBool("TEXT_DRY_RUN", true),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			Brokers:     getEnvList("KAFKA_BROKERS", "localhost:9092"),
			EventsTopic: getEnv("KAFKA_EVENTS_TOPIC", "verification.events"),
			AlertsTopic: getEnv("KAFKA_ALERTS_TOPIC", "verification.alerts"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:       getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:           getEnv("CLICKHOUSE_URL", "http://localhost:8123"),
			Database:      getEnv("CLICKHOUSE_DATABASE", "verification"),
			Username:      getEnv("CLICKHOUSE_USER", "default"),
			Password:      getEnv("CLICKHOUSE_PASSWORD", ""),
			BatchSize:     getEnvInt("CLICKHOUSE_BATCH_SIZE", 500),
			FlushInterval: getEnvDuration("CLICKHOUSE_FLUSH_INTERVAL", 10*time.Second),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:    getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:        getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username:   getEnv("ELASTICSEARCH_USER", ""),
			Password:   getEnv("ELASTICSEARCH_PASSWORD", ""),
			AlertIndex: getEnv("ELASTICSEARCH_ALERT_INDEX", "verification-alerts"),
		},
		Scylla: ScyllaConfig{
			Enabled:  getEnvBool("SCYLLA_ENABLED", false),
			Nodes:    getEnvList("SCYLLA_NODES", "localhost:9042"),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "verification"),
			Username: getEnv("SCYLLA_USER", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// Validate rejects configurations that cannot possibly work.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP max attempts must be at least 1")
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("OTP TTL must be positive")
	}
	if c.RateLimit.Points < 1 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate limit configuration")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
