package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Platforms     PlatformsConfig     `mapstructure:"platforms"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WebhookRateRPM  int           `mapstructure:"webhook_rate_rpm"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTExpiry time.Duration `mapstructure:"jwt_expiry"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// SyncConfig drives the reconciliation cycle and outbound platform calls.
type SyncConfig struct {
	Interval                time.Duration `mapstructure:"interval"`
	HTTPTimeout             time.Duration `mapstructure:"http_timeout"`
	LockTTL                 time.Duration `mapstructure:"lock_ttl"`
	LockRetries             int           `mapstructure:"lock_retries"`
	LockRetryDelay          time.Duration `mapstructure:"lock_retry_delay"`
	MaxRetries              uint          `mapstructure:"max_retries"`
	RetryDelay              time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay           time.Duration `mapstructure:"max_retry_delay"`
	StoreMaxRetries         uint          `mapstructure:"store_max_retries"`
	CircuitBreakerThreshold uint32        `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	NotifyQueueSize         int           `mapstructure:"notify_queue_size"`
}

type WorkerConfig struct {
	BatchSize      int64         `mapstructure:"batch_size"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	// Pending deliveries idle longer than ClaimMinIdle are retried every ClaimInterval.
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
	ClaimInterval time.Duration `mapstructure:"claim_interval"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

type PlatformsConfig struct {
	CartPanda CartPandaConfig `mapstructure:"cartpanda"`
	Yampi     YampiConfig     `mapstructure:"yampi"`
	Kiwify    KiwifyConfig    `mapstructure:"kiwify"`
}

type CartPandaConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Sandbox       bool   `mapstructure:"sandbox"`
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

type YampiConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Sandbox       bool   `mapstructure:"sandbox"`
	BaseURL       string `mapstructure:"base_url"`
	Alias         string `mapstructure:"alias"`
	Token         string `mapstructure:"token"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
	MaxPages      int    `mapstructure:"max_pages"`
}

type KiwifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Sandbox       bool   `mapstructure:"sandbox"`
	BaseURL       string `mapstructure:"base_url"`
	Token         string `mapstructure:"token"`
	AccountID     string `mapstructure:"account_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

// envKeyReplacer maps nested keys such as sync.interval to PLATFORMSYNC_SYNC_INTERVAL.
var envKeyReplacer = strings.NewReplacer(".", "_")

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("PLATFORMSYNC")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/platformsync")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Sync.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sync.interval must be positive"))
	}
	if c.Sync.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.http_timeout must be positive"))
	}
	if c.Sync.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("sync.lock_ttl must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	errs = append(errs, c.Platforms.validate()...)

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Platforms.CartPanda.Enabled && c.Platforms.CartPanda.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("platforms.cartpanda.webhook_secret required in production"))
		}
		if c.Platforms.Yampi.Enabled && c.Platforms.Yampi.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("platforms.yampi.webhook_secret required in production"))
		}
		if c.Platforms.Kiwify.Enabled && c.Platforms.Kiwify.WebhookSecret == "" {
			errs = append(errs, fmt.Errorf("platforms.kiwify.webhook_secret required in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
	}

	return errors.Join(errs...)
}

func (p PlatformsConfig) validate() []error {
	var errs []error
	if p.CartPanda.Enabled {
		if p.CartPanda.APIKey == "" {
			errs = append(errs, fmt.Errorf("platforms.cartpanda.api_key is required"))
		}
		if p.CartPanda.SecretKey == "" {
			errs = append(errs, fmt.Errorf("platforms.cartpanda.secret_key is required"))
		}
	}
	if p.Yampi.Enabled {
		if p.Yampi.Alias == "" {
			errs = append(errs, fmt.Errorf("platforms.yampi.alias is required"))
		}
		if p.Yampi.Token == "" || p.Yampi.SecretKey == "" {
			errs = append(errs, fmt.Errorf("platforms.yampi.token and secret_key are required"))
		}
	}
	if p.Kiwify.Enabled {
		if p.Kiwify.Token == "" {
			errs = append(errs, fmt.Errorf("platforms.kiwify.token is required"))
		}
		if p.Kiwify.AccountID == "" {
			errs = append(errs, fmt.Errorf("platforms.kiwify.account_id is required"))
		}
	}
	return errs
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.webhook_rate_rpm", 600)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "platformsync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "platformsync")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Sync defaults
	v.SetDefault("sync.interval", "5m")
	v.SetDefault("sync.http_timeout", "15s")
	v.SetDefault("sync.lock_ttl", "10m")
	v.SetDefault("sync.lock_retries", 30)
	v.SetDefault("sync.lock_retry_delay", "500ms")
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_delay", "500ms")
	v.SetDefault("sync.max_retry_delay", "10s")
	v.SetDefault("sync.store_max_retries", 3)
	v.SetDefault("sync.circuit_breaker_threshold", 10)
	v.SetDefault("sync.circuit_breaker_timeout", "30s")
	v.SetDefault("sync.notify_queue_size", 256)

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "webhook-processors")
	v.SetDefault("worker.idempotency_ttl", "24h")
	v.SetDefault("worker.claim_min_idle", "1m")
	v.SetDefault("worker.claim_interval", "30s")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_expiry", "24h")

	// Platform defaults
	v.SetDefault("platforms.cartpanda.enabled", false)
	v.SetDefault("platforms.cartpanda.sandbox", true)
	v.SetDefault("platforms.cartpanda.currency", "BRL")
	v.SetDefault("platforms.yampi.enabled", false)
	v.SetDefault("platforms.yampi.sandbox", true)
	v.SetDefault("platforms.yampi.currency", "BRL")
	v.SetDefault("platforms.yampi.max_pages", 50)
	v.SetDefault("platforms.kiwify.enabled", false)
	v.SetDefault("platforms.kiwify.sandbox", true)
	v.SetDefault("platforms.kiwify.currency", "BRL")

	// Credentials have empty defaults so AutomaticEnv can override them on Unmarshal
	for _, key := range []string{
		"platforms.cartpanda.base_url", "platforms.cartpanda.api_key",
		"platforms.cartpanda.secret_key", "platforms.cartpanda.webhook_secret",
		"platforms.yampi.base_url", "platforms.yampi.alias", "platforms.yampi.token",
		"platforms.yampi.secret_key", "platforms.yampi.webhook_secret",
		"platforms.kiwify.base_url", "platforms.kiwify.token",
		"platforms.kiwify.account_id", "platforms.kiwify.webhook_secret",
	} {
		v.SetDefault(key, "")
	}

	// Instance ID
	v.SetDefault("instance_id", "platformsync-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// DatabaseURL is the URL form golang-migrate expects.
func (c *DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
