// Package config loads application configuration from defaults, an optional
// YAML file and NOTIFIER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: NOTIFIER_DATABASE__URL sets database.url.
const EnvPrefix = "NOTIFIER_"

// DefaultFile is read when CONFIG_FILE is not set.
const DefaultFile = "config.yaml"

// Delivery providers.
const (
	ProviderDev      = "dev"
	ProviderSMTP     = "smtp"
	ProviderPostmark = "postmark"
	ProviderGmail    = "gmail"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	CORS     CORSConfig     `koanf:"cors"`
	Site     SiteConfig     `koanf:"site"`
	Auth     AuthConfig     `koanf:"auth"`
	Content  ContentConfig  `koanf:"content"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Delivery DeliveryConfig `koanf:"delivery"`
	Redis    RedisConfig    `koanf:"redis"`
	Schedule ScheduleConfig `koanf:"schedule"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"min=1"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SiteConfig describes the site whose content is announced.
type SiteConfig struct {
	Name    string `koanf:"name" validate:"required"`
	BaseURL string `koanf:"base_url" validate:"required,url"`
}

// AuthConfig holds secrets for the trigger and admin endpoints.
type AuthConfig struct {
	CronSecret     string        `koanf:"cron_secret" validate:"required,min=16"`
	JWTSecret      string        `koanf:"jwt_secret" validate:"required,min=32"`
	JWTIssuer      string        `koanf:"jwt_issuer"`
	AdminTokenTTL  time.Duration `koanf:"admin_token_ttl" validate:"gt=0"`
	CronHeaderName string        `koanf:"cron_header" validate:"required"`
}

// ContentConfig points at the published content tree.
type ContentConfig struct {
	Dir   string `koanf:"dir" validate:"required"`
	Watch bool   `koanf:"watch"`
}

// PipelineConfig tunes fan-out, retries and the circuit breaker.
type PipelineConfig struct {
	BatchSize        int           `koanf:"batch_size" validate:"min=1,max=500"`
	Workers          int           `koanf:"workers" validate:"min=0"`
	BatchDelay       time.Duration `koanf:"batch_delay" validate:"min=0"`
	MaxRetries       int           `koanf:"max_retries" validate:"min=1"`
	SweepLimit       int           `koanf:"sweep_limit" validate:"min=1"`
	BaseBackoff      time.Duration `koanf:"base_backoff" validate:"gt=0"`
	BreakerThreshold int           `koanf:"breaker_threshold" validate:"min=1"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`
	TokenTTL         time.Duration `koanf:"token_ttl" validate:"gt=0"`
	EventRetention   time.Duration `koanf:"event_retention" validate:"gt=0"`
}

// DeliveryConfig selects and configures the email provider.
type DeliveryConfig struct {
	Provider      string         `koanf:"provider" validate:"oneof=dev smtp postmark gmail"`
	RatePerSecond float64        `koanf:"rate_per_second" validate:"gt=0"`
	Burst         int            `koanf:"burst" validate:"min=1"`
	FromAddress   string         `koanf:"from_address" validate:"required"`
	ReplyTo       string         `koanf:"reply_to"`
	DevDir        string         `koanf:"dev_dir"`
	SMTP          SMTPConfig     `koanf:"smtp"`
	Postmark      PostmarkConfig `koanf:"postmark"`
	Gmail         GmailConfig    `koanf:"gmail"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	User        string        `koanf:"user"`
	Password    string        `koanf:"password"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

// PostmarkConfig holds Postmark API tokens.
type PostmarkConfig struct {
	ServerToken  string `koanf:"server_token"`
	AccountToken string `koanf:"account_token"`
	TrackOpens   bool   `koanf:"track_opens"`
}

// GmailConfig holds OAuth credentials for the Gmail API.
type GmailConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RefreshToken string `koanf:"refresh_token"`
}

// RedisConfig enables the cross-process run lock when URL is set.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// ScheduleConfig holds cron expressions. Empty disables the job.
type ScheduleConfig struct {
	Run          string `koanf:"run"`
	Retry        string `koanf:"retry"`
	Housekeeping string `koanf:"housekeeping"`
}

// Default returns the configuration used when nothing overrides a key.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			AdminTokenTTL:  24 * time.Hour,
			CronHeaderName: "X-Cron-Secret",
		},
		Pipeline: PipelineConfig{
			BatchSize:        5,
			BatchDelay:       2 * time.Second,
			MaxRetries:       5,
			SweepLimit:       100,
			BaseBackoff:      time.Minute,
			BreakerThreshold: 5,
			BreakerCooldown:  5 * time.Minute,
			TokenTTL:         365 * 24 * time.Hour,
			EventRetention:   30 * 24 * time.Hour,
		},
		Delivery: DeliveryConfig{
			Provider:      ProviderDev,
			RatePerSecond: 2,
			Burst:         1,
			DevDir:        ".mail",
			SMTP: SMTPConfig{
				Port:        587,
				DialTimeout: 10 * time.Second,
			},
		},
	}
}

// Load builds the configuration. path may be empty; a missing file is not
// an error so deployments can rely on the environment alone.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps NOTIFIER_PIPELINE__MAX_RETRIES to pipeline.max_retries.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field constraints and provider-specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	d := c.Delivery
	switch d.Provider {
	case ProviderSMTP:
		if d.SMTP.Host == "" || d.SMTP.Port == 0 {
			return errors.New("invalid config: delivery.smtp.host and delivery.smtp.port are required")
		}
	case ProviderPostmark:
		if d.Postmark.ServerToken == "" {
			return errors.New("invalid config: delivery.postmark.server_token is required")
		}
	case ProviderGmail:
		if d.Gmail.ClientID == "" || d.Gmail.ClientSecret == "" || d.Gmail.RefreshToken == "" {
			return errors.New("invalid config: delivery.gmail credentials are required")
		}
	case ProviderDev:
		if d.DevDir == "" {
			return errors.New("invalid config: delivery.dev_dir is required")
		}
	}
	return nil
}

// EffectiveWorkers resolves a zero worker count to the batch size.
func (p PipelineConfig) EffectiveWorkers() int {
	if p.Workers <= 0 || p.Workers > p.BatchSize {
		return p.BatchSize
	}
	return p.Workers
}
