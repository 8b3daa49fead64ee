package config

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"laundry-session-backend/internal/logging"
)

// DefaultSupervisorCode is used when neither the config file nor SUPERVISOR_CODE sets one.
const DefaultSupervisorCode = "246810"

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Laundry    LaundryConfig    `yaml:"laundry"`
	SMS        SMSConfig        `yaml:"sms"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// WorkerPoolConfig holds the configuration for the vacancy alert worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LaundryConfig holds the business rules of a laundry session.
type LaundryConfig struct {
	CycleMinutes   int           `yaml:"cycle_minutes"`
	GraceMinutes   int           `yaml:"grace_minutes"`
	SupervisorCode string        `yaml:"supervisor_code"`
	CycleDuration  time.Duration `yaml:"-"`
}

// SMSConfig holds the Twilio credentials. Empty credentials are valid: every send then
// fails with a missing-configuration result.
type SMSConfig struct {
	AccountSID     string        `yaml:"account_sid"`
	AuthToken      string        `yaml:"auth_token"`
	FromNumber     string        `yaml:"from_number"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// LogConfig holds the logger configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the configuration from the given path. A missing file is not an error; the
// defaults and environment overrides are applied either way.
func Load(path string) (*Config, error) {
	// .env is optional in every environment
	_ = godotenv.Load()

	// grace may legitimately be zero, so its default is set before decoding
	cfg := Config{Laundry: LaundryConfig{GraceMinutes: 6}}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		logging.Logger.Warnf("config file %s not found; using defaults and environment", path)
	default:
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	overrides := map[string]*string{
		"SUPERVISOR_CODE":    &cfg.Laundry.SupervisorCode,
		"TWILIO_ACCOUNT_SID": &cfg.SMS.AccountSID,
		"TWILIO_AUTH_TOKEN":  &cfg.SMS.AuthToken,
		"TWILIO_FROM_NUMBER": &cfg.SMS.FromNumber,
		"DATABASE_DRIVER":    &cfg.Database.Driver,
		"DATABASE_DSN":       &cfg.Database.DSN,
		"LOG_LEVEL":          &cfg.Log.Level,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	if v, err := strconv.Atoi(os.Getenv("PORT")); err == nil && v > 0 {
		cfg.Server.Port = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "dlms.sqlite3"
	}

	if cfg.Laundry.CycleMinutes <= 0 {
		cfg.Laundry.CycleMinutes = 45
	}
	cfg.Laundry.CycleDuration = time.Duration(cfg.Laundry.CycleMinutes) * time.Minute
	if cfg.Laundry.GraceMinutes < 0 {
		cfg.Laundry.GraceMinutes = 0
	}
	if cfg.Laundry.SupervisorCode == "" {
		logging.Logger.Warn("laundry.supervisor_code is not set; using the built-in default")
		cfg.Laundry.SupervisorCode = DefaultSupervisorCode
	}

	if cfg.SMS.TimeoutSeconds <= 0 {
		cfg.SMS.TimeoutSeconds = 15
	}
	cfg.SMS.Timeout = time.Duration(cfg.SMS.TimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		logging.Logger.Infof("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
