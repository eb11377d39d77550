package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/guard"
	"github.com/MrEthical07/goSession/idle"
	"github.com/MrEthical07/goSession/kvstore"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
)

// EnvPrefix prefixes every environment override, e.g.
// GOSESSION_BACKEND_URL or GOSESSION_IDLE_TIMEOUT.
const EnvPrefix = "GOSESSION_"

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Backend BackendConfig `yaml:"backend" envPrefix:"BACKEND_"`
	Session SessionConfig `yaml:"session" envPrefix:"SESSION_"`
	Idle    IdleConfig    `yaml:"idle" envPrefix:"IDLE_"`
	Refresh RefreshConfig `yaml:"refresh" envPrefix:"REFRESH_"`
	Client  ClientConfig  `yaml:"client" envPrefix:"CLIENT_"`
	Storage StorageConfig `yaml:"storage" envPrefix:"STORAGE_"`
	Audit   AuditConfig   `yaml:"audit" envPrefix:"AUDIT_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`

	// Routes maps a route name to its guard requirement.
	Routes map[string]guard.Options `yaml:"routes"`
}

/*
====================================
BACKEND CONFIG
====================================
*/

// BackendConfig locates the authentication backend.
type BackendConfig struct {
	BaseURL string    `yaml:"base_url" env:"URL"`
	Paths   api.Paths `yaml:"paths" envPrefix:"PATH_"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goSession APIs.
type SessionConfig struct {
	// StorageKey is the key the session record is persisted under.
	StorageKey string `yaml:"storage_key" env:"KEY"`
}

// IdleConfig controls the inactivity logout.
type IdleConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Signals lists the activity kinds that reset the countdown. Empty
	// means every kind.
	Signals []string `yaml:"signals" env:"SIGNALS" envSeparator:","`
}

// RefreshConfig bounds the shared token refresh call.
type RefreshConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ClientConfig tunes the authenticated HTTP client.
type ClientConfig struct {
	Timeout              time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ProactiveRefreshSkew time.Duration `yaml:"proactive_refresh_skew" env:"PROACTIVE_REFRESH_SKEW"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// Storage drivers accepted by StorageConfig.Driver.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StorageFile     = "file"
	StorageSQLite   = string(kvstore.DialectSQLite)
	StorageMySQL    = string(kvstore.DialectMySQL)
	StoragePostgres = string(kvstore.DialectPostgres)
)

// StorageConfig selects where the session record is persisted.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`

	RedisURL    string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	RedisTTL    time.Duration `yaml:"redis_ttl" env:"REDIS_TTL"`

	FilePath string `yaml:"file_path" env:"FILE_PATH"`
	// FilePassphrase encrypts the file store. Prefer the environment over
	// the YAML file for this value.
	FilePassphrase string `yaml:"file_passphrase" env:"FILE_PASSPHRASE"`

	DSN   string `yaml:"dsn" env:"DSN"`
	Table string `yaml:"table" env:"TABLE"`
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig defines a public type used by goSession APIs.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled" env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
	DropIfFull bool `yaml:"drop_if_full" env:"DROP_IF_FULL"`

	// AMQPURL, when set, publishes events to RabbitMQ in addition to any
	// sink given to the Builder.
	AMQPURL        string `yaml:"amqp_url" env:"AMQP_URL"`
	AMQPExchange   string `yaml:"amqp_exchange" env:"AMQP_EXCHANGE"`
	AMQPRoutingKey string `yaml:"amqp_routing_key" env:"AMQP_ROUTING_KEY"`
}

// MetricsConfig defines a public type used by goSession APIs.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled" env:"ENABLED"`
	EnableLatencyHistograms bool `yaml:"latency_histograms" env:"LATENCY_HISTOGRAMS"`
}

// DefaultConfig returns the stock configuration: local backend, memory
// storage, thirty minute idle logout, metrics on.
func DefaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000/api",
			Paths:   api.DefaultPaths(),
		},
		Session: SessionConfig{StorageKey: session.DefaultKey},
		Idle: IdleConfig{
			Enabled: true,
			Timeout: idle.DefaultTimeout,
		},
		Refresh: RefreshConfig{Timeout: refresh.DefaultTimeout},
		Client:  ClientConfig{Timeout: 30 * time.Second},
		Storage: StorageConfig{
			Driver:      StorageMemory,
			RedisPrefix: "gosession:",
			Table:       kvstore.DefaultTable,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Idle.Signals = append([]string(nil), cfg.Idle.Signals...)
	if cfg.Routes != nil {
		out.Routes = make(map[string]guard.Options, len(cfg.Routes))
		for k, v := range cfg.Routes {
			v.Roles = append([]string(nil), v.Roles...)
			out.Routes[k] = v
		}
	}
	return out
}

// LoadConfigFile reads a YAML file over DefaultConfig, applies environment
// overrides and validates the result.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadConfigEnv is DefaultConfig with environment overrides, validated.
func LoadConfigEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with every GOSESSION_* variable that is set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend base_url must be an absolute http(s) URL, got %q", c.Backend.BaseURL)
	}
	if c.Backend.Paths.Login == "" || c.Backend.Paths.Refresh == "" {
		return errors.New("backend login and refresh paths are required")
	}
	if strings.TrimSpace(c.Session.StorageKey) == "" {
		return errors.New("session storage_key is required")
	}

	if c.Idle.Enabled && c.Idle.Timeout <= 0 {
		return errors.New("idle timeout must be > 0 when idle logout is enabled")
	}
	if _, err := parseSignals(c.Idle.Signals); err != nil {
		return err
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("refresh timeout must be > 0")
	}
	if c.Client.Timeout < 0 || c.Client.ProactiveRefreshSkew < 0 {
		return errors.New("client timeouts must be >= 0")
	}
	if c.Client.Timeout > 0 && c.Client.Timeout < c.Refresh.Timeout {
		return errors.New("client timeout must not be shorter than refresh timeout")
	}

	if err := c.Storage.validate(); err != nil {
		return err
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer_size must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("latency histograms require metrics to be enabled")
	}

	for name, opts := range c.Routes {
		if _, err := guard.FromOptions(opts); err != nil {
			return fmt.Errorf("route %q: %w", name, err)
		}
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Driver {
	case StorageMemory:
		return nil
	case StorageRedis:
		if s.RedisURL == "" {
			return errors.New("storage redis_url is required for the redis driver")
		}
		if s.RedisTTL < 0 {
			return errors.New("storage redis_ttl must be >= 0")
		}
	case StorageFile:
		if s.FilePath == "" || s.FilePassphrase == "" {
			return errors.New("storage file_path and file_passphrase are required for the file driver")
		}
	case StorageSQLite, StorageMySQL, StoragePostgres:
		if s.DSN == "" {
			return fmt.Errorf("storage dsn is required for the %s driver", s.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", s.Driver)
	}
	return nil
}

func parseSignals(names []string) ([]idle.Signal, error) {
	if len(names) == 0 {
		return nil, nil
	}
	known := idle.DefaultSignals()
	out := make([]idle.Signal, 0, len(names))
	for _, n := range names {
		sig := idle.Signal(strings.ToLower(strings.TrimSpace(n)))
		found := false
		for _, k := range known {
			if k == sig {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown idle signal %q", n)
		}
		out = append(out, sig)
	}
	return out, nil
}
