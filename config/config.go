package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PASSPOLICY_DATABASE_HOST.
const EnvPrefix = "PASSPOLICY"

// Persistence drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Host            string        `mapstructure:"host" split_words:"true"`
	Port            int           `mapstructure:"port" split_words:"true"`
	User            string        `mapstructure:"user" split_words:"true"`
	Password        string        `mapstructure:"password" split_words:"true"`
	Name            string        `mapstructure:"name" split_words:"true"`
	SSLMode         string        `mapstructure:"sslmode" split_words:"true"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" split_words:"true"`
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type ServerConfig struct {
	Port           int           `mapstructure:"port" split_words:"true"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" split_words:"true"`
	Mode           string        `mapstructure:"mode" split_words:"true"`
	// WorkerPort serves health and metrics for cmd/worker.
	WorkerPort      int           `mapstructure:"worker_port" split_words:"true"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" split_words:"true"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled" split_words:"true"`
	URL          string        `mapstructure:"url" split_words:"true"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
	Channel      string        `mapstructure:"channel" split_words:"true"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret" split_words:"true"`
	Issuer    string `mapstructure:"issuer" split_words:"true"`
	AdminRole string `mapstructure:"admin_role" split_words:"true"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled" split_words:"true"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst" split_words:"true"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled" split_words:"true"`
	MetricsPath       string `mapstructure:"metrics_path" split_words:"true"`
	Namespace         string `mapstructure:"namespace" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level" split_words:"true"`
	JSON  bool   `mapstructure:"json" split_words:"true"`
}

// PersistenceConfig selects the storage collaborator and how its I/O is retried.
type PersistenceConfig struct {
	Driver        string        `mapstructure:"driver" split_words:"true"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	RetryMaxDelay time.Duration `mapstructure:"retry_max_delay" split_words:"true"`
}

type CacheConfig struct {
	PolicyTTL       time.Duration `mapstructure:"policy_ttl" split_words:"true"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" split_words:"true"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval  time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" split_words:"true"`
	Retention     time.Duration `mapstructure:"retention" split_words:"true"`
}

type PasswordConfig struct {
	DefaultLength   int           `mapstructure:"default_length" split_words:"true"`
	BcryptCost      int           `mapstructure:"bcrypt_cost" split_words:"true"`
	MaxAttempts     int           `mapstructure:"max_attempts" split_words:"true"`
	CommonPasswords []string      `mapstructure:"common_passwords" split_words:"true"`
	AuditRetention  time.Duration `mapstructure:"audit_retention" split_words:"true"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server" envconfig:"server"`
	Database    DatabaseConfig    `mapstructure:"database" envconfig:"database"`
	Redis       RedisConfig       `mapstructure:"redis" envconfig:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt" envconfig:"jwt"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit" envconfig:"rate_limit"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring" envconfig:"monitoring"`
	Log         LogConfig         `mapstructure:"log" envconfig:"log"`
	Persistence PersistenceConfig `mapstructure:"persistence" envconfig:"persistence"`
	Cache       CacheConfig       `mapstructure:"cache" envconfig:"cache"`
	Outbox      OutboxConfig      `mapstructure:"outbox" envconfig:"outbox"`
	Password    PasswordConfig    `mapstructure:"password" envconfig:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_port", 8081)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.channel", "password-policy-events")

	v.SetDefault("jwt.admin_role", "admin")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "passpolicy")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("persistence.driver", DriverPostgres)
	v.SetDefault("persistence.retry_attempts", 3)
	v.SetDefault("persistence.retry_backoff", 50*time.Millisecond)
	v.SetDefault("persistence.retry_max_delay", time.Second)

	v.SetDefault("cache.policy_ttl", 5*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.retention", 7*24*time.Hour)

	v.SetDefault("password.default_length", 16)
	v.SetDefault("password.bcrypt_cost", 10)
	v.SetDefault("password.max_attempts", 100)
	v.SetDefault("password.audit_retention", 90*24*time.Hour)
}

// LoadConfig reads config.yml from path (or the usual search locations when
// path is empty), then applies PASSPOLICY_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

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

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the loaded configuration can start the service.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	if c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required")
	}

	switch c.Persistence.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			problems = append(problems, "database.host is required")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.name is required")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("persistence.driver %q is not supported", c.Persistence.Driver))
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		problems = append(problems, "redis.url is required when redis is enabled")
	}
	if c.Password.DefaultLength < 8 {
		problems = append(problems, "password.default_length must be at least 8")
	}
	if c.Persistence.RetryAttempts < 0 {
		problems = append(problems, "persistence.retry_attempts must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
