package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. REPORTS_SERVER_PORT.
const EnvPrefix = "REPORTS"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Report    ReportConfig    `mapstructure:"report"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" split_words:"true"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	BaseURL        string        `mapstructure:"base_url" split_words:"true"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" split_words:"true"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" split_words:"true"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" split_words:"true"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" split_words:"true"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" split_words:"true"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Channel      string        `mapstructure:"channel"`
	MaxRetries   int           `mapstructure:"max_retries" split_words:"true"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" split_words:"true"`
	PoolSize     int           `mapstructure:"pool_size" split_words:"true"`
	MinIdleConns int           `mapstructure:"min_idle_conns" split_words:"true"`
}

type StorageConfig struct {
	// Driver is one of "s3", "local" or "memory".
	Driver             string        `mapstructure:"driver"`
	ProfileBucket      string        `mapstructure:"profile_bucket" split_words:"true"`
	LabBucket          string        `mapstructure:"lab_bucket" split_words:"true"`
	URLExpiry          time.Duration `mapstructure:"url_expiry" envconfig:"URL_EXPIRY"`
	SignedURLCacheTTL  time.Duration `mapstructure:"signed_url_cache_ttl" envconfig:"SIGNED_URL_CACHE_TTL"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout" split_words:"true"`
	MaxAttachmentBytes int64         `mapstructure:"max_attachment_bytes" split_words:"true"`
	BreakerFailures    int           `mapstructure:"breaker_failures" split_words:"true"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout" split_words:"true"`
	S3                 S3Config      `mapstructure:"s3"`
	Local              LocalConfig   `mapstructure:"local"`

	// BreakerHalfOpenRequests should cover report.fetch_concurrency.
	BreakerHalfOpenRequests int `mapstructure:"breaker_half_open_requests" split_words:"true"`
}

type S3Config struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `mapstructure:"secret_access_key" split_words:"true"`
	UsePathStyle    bool   `mapstructure:"use_path_style" split_words:"true"`
}

type LocalConfig struct {
	Root   string `mapstructure:"root"`
	Secret string `mapstructure:"secret"`
}

type ReportConfig struct {
	AttachmentBudget time.Duration `mapstructure:"attachment_budget" split_words:"true"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency" split_words:"true"`
	Creator          string        `mapstructure:"creator"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" split_words:"true"`
	Burst             int     `mapstructure:"burst"`
}

type OutboxConfig struct {
	BatchSize       int           `mapstructure:"batch_size" split_words:"true"`
	PollInterval    time.Duration `mapstructure:"poll_interval" split_words:"true"`
	RetryAttempts   int           `mapstructure:"retry_attempts" split_words:"true"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" split_words:"true"`
	MaxRetries      int           `mapstructure:"max_retries" split_words:"true"`
	RetentionPeriod time.Duration `mapstructure:"retention_period" split_words:"true"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 45*time.Second)
	v.SetDefault("server.max_body_bytes", 5<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "clinic_reports")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.channel", "reports.generated")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.profile_bucket", "profile-images")
	v.SetDefault("storage.lab_bucket", "lab-files")
	v.SetDefault("storage.url_expiry", 5*time.Minute)
	v.SetDefault("storage.signed_url_cache_ttl", 2*time.Minute)
	v.SetDefault("storage.fetch_timeout", 10*time.Second)
	v.SetDefault("storage.max_attachment_bytes", 20<<20)
	v.SetDefault("storage.breaker_failures", 5)
	v.SetDefault("storage.breaker_timeout", 30*time.Second)
	v.SetDefault("storage.breaker_half_open_requests", 4)
	v.SetDefault("storage.local.root", "./data")

	v.SetDefault("report.attachment_budget", 20*time.Second)
	v.SetDefault("report.fetch_concurrency", 4)
	v.SetDefault("report.creator", "clinic-reports")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", time.Second)
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.retention_period", 7*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
}

// LoadConfig reads config.yaml (optional unless file is given), applies
// defaults and then REPORTS_* environment overrides.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.Server.Port <= 0 {
		problems = append(problems, "server.port must be positive")
	}
	switch c.Storage.Driver {
	case "s3", "memory":
	case "local":
		if c.Storage.Local.Secret == "" {
			problems = append(problems, "storage.local.secret is required for the local driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is not one of s3, local, memory", c.Storage.Driver))
	}
	if c.Storage.SignedURLCacheTTL >= c.Storage.URLExpiry {
		problems = append(problems, "storage.signed_url_cache_ttl must be shorter than storage.url_expiry")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 {
		problems = append(problems, "outbox.batch_size and outbox.poll_interval must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
