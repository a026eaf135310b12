// Package config loads the runtime configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/homebus/homebus/internal/threadpool"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for a config file with an unknown extension.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "HOMEBUS_"

type Config struct {
	Node        string                       `yaml:"node" toml:"node" json:"node"`
	ThreadPool  ThreadPoolConfig             `yaml:"threadpool" toml:"threadpool" json:"threadpool"`
	Logging     LoggingConfig                `yaml:"logging" toml:"logging" json:"logging"`
	Diagnostics DiagnosticsConfig            `yaml:"diagnostics" toml:"diagnostics" json:"diagnostics"`
	Bindings    map[string]map[string]string `yaml:"bindings" toml:"bindings" json:"bindings"`
	Items       []ItemBinding                `yaml:"items" toml:"items" json:"items" validate:"dive"`
}

// PoolConfig sizes a worker pool. MinWorkers is a pointer so that an
// explicit zero survives defaulting.
type PoolConfig struct {
	MinWorkers  *int `yaml:"min_workers" toml:"min_workers" json:"min_workers" validate:"omitempty,gte=0"`
	MaxWorkers  int `yaml:"max_workers" toml:"max_workers" json:"max_workers" validate:"gte=0"`
	KeepAliveMS int `yaml:"keep_alive_ms" toml:"keep_alive_ms" json:"keep_alive_ms" validate:"gte=0"`
}

type ScheduledPoolConfig struct {
	Size int `yaml:"size" toml:"size" json:"size" validate:"gte=0"`
}

type ThreadPoolConfig struct {
	Bindings   PoolConfig          `yaml:"bindings" toml:"bindings" json:"bindings"`
	Events     PoolConfig          `yaml:"events" toml:"events" json:"events"`
	Background ScheduledPoolConfig `yaml:"background" toml:"background" json:"background"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" json:"format" validate:"omitempty,oneof=text json"`
}

type DiagnosticsConfig struct {
	Enabled        bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Host           string `yaml:"host" toml:"host" json:"host"`
	Port           int    `yaml:"port" toml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms" toml:"read_timeout_ms" json:"read_timeout_ms" validate:"gte=0"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms" toml:"write_timeout_ms" json:"write_timeout_ms" validate:"gte=0"`
}

// ItemBinding binds an item to a binding type with a binding-specific
// configuration string.
type ItemBinding struct {
	Item    string `yaml:"item" toml:"item" json:"item" validate:"required"`
	Binding string `yaml:"binding" toml:"binding" json:"binding" validate:"required"`
	Config  string `yaml:"config" toml:"config" json:"config"`
}

// Load reads configuration from file, applies environment variable
// overrides and then defaults, and validates the result. The format is chosen by
// extension: .yaml/.yml, .toml or .json.
//
// An empty path skips the file and yields the defaults plus overrides.
// Invalid overrides do not fail the load; they are returned joined in warn
// and the previous value is kept.
func Load(configPath string) (cfg *Config, warn error, err error) {
	cfg = &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := decode(configPath, data, cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	warn = applyEnvOverrides(cfg, os.LookupEnv)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, warn, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, warn, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	case ".json":
		return json.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the built-in defaults.
func (c *Config) ApplyDefaults() {
	c.ThreadPool.Bindings.ApplyDefaults()
	c.ThreadPool.Events.ApplyDefaults()
	if c.ThreadPool.Background.Size == 0 {
		c.ThreadPool.Background.Size = threadpool.DefaultScheduledSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Diagnostics.Host == "" {
		c.Diagnostics.Host = "127.0.0.1"
	}
	if c.Diagnostics.Port == 0 {
		c.Diagnostics.Port = 8081
	}
	if c.Diagnostics.ReadTimeoutMS == 0 {
		c.Diagnostics.ReadTimeoutMS = 10000
	}
	if c.Diagnostics.WriteTimeoutMS == 0 {
		c.Diagnostics.WriteTimeoutMS = 10000
	}
}

// ApplyDefaults sets default worker counts and keep-alive. An unset minimum
// defaults to the smaller of the built-in minimum and MaxWorkers.
func (p *PoolConfig) ApplyDefaults() {
	if p.MaxWorkers == 0 {
		p.MaxWorkers = threadpool.DefaultMaxWorkers
	}
	if p.MinWorkers == nil {
		n := min(threadpool.DefaultMinWorkers, p.MaxWorkers)
		p.MinWorkers = &n
	}
	if p.KeepAliveMS == 0 {
		p.KeepAliveMS = int(threadpool.DefaultKeepAlive / time.Millisecond)
	}
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := ValidateStruct(c); err != nil {
		return err
	}

	var errs ValidationErrors
	for name, p := range map[string]PoolConfig{"bindings": c.ThreadPool.Bindings, "events": c.ThreadPool.Events} {
		if p.MaxWorkers > 0 && p.Min() > p.MaxWorkers {
			errs.Errors = append(errs.Errors, ValidationError{
				Field:   "threadpool." + name,
				Message: fmt.Sprintf("min_workers (%d) must not exceed max_workers (%d)", p.Min(), p.MaxWorkers),
			})
		}
	}
	if len(errs.Errors) > 0 {
		slices.SortFunc(errs.Errors, func(a, b ValidationError) int { return strings.Compare(a.Field, b.Field) })
		return &errs
	}
	return nil
}

// Min returns the configured minimum, zero when unset.
func (p *PoolConfig) Min() int {
	if p.MinWorkers == nil {
		return 0
	}
	return *p.MinWorkers
}

// KeepAlive returns the keep-alive as a duration.
func (p *PoolConfig) KeepAlive() time.Duration {
	return time.Duration(p.KeepAliveMS) * time.Millisecond
}

// ReadTimeout returns the read timeout as a duration.
func (d *DiagnosticsConfig) ReadTimeout() time.Duration {
	return time.Duration(d.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration.
func (d *DiagnosticsConfig) WriteTimeout() time.Duration {
	return time.Duration(d.WriteTimeoutMS) * time.Millisecond
}

// Addr returns the diagnostics listen address.
func (d *DiagnosticsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// Pools converts the thread pool section for threadpool.NewRegistry.
func (t *ThreadPoolConfig) Pools() threadpool.Config {
	return threadpool.Config{
		Bindings: threadpool.PoolConfig{
			MinWorkers: t.Bindings.Min(),
			MaxWorkers: t.Bindings.MaxWorkers,
			KeepAlive:  t.Bindings.KeepAlive(),
		},
		Events: threadpool.PoolConfig{
			MinWorkers: t.Events.Min(),
			MaxWorkers: t.Events.MaxWorkers,
			KeepAlive:  t.Events.KeepAlive(),
		},
		Background: threadpool.ScheduledConfig{Size: t.Background.Size},
	}
}

// applyEnvOverrides applies HOMEBUS_* variables. Unparseable numbers are
// reported and leave the current value untouched.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	var errs error

	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n < 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: invalid value %q, keeping %d", EnvPrefix, key, v, *dst))
			return
		}
		*dst = n
	}
	optNum := func(key string, dst **int) {
		if v, ok := lookup(EnvPrefix + key); !ok || v == "" {
			return
		}
		var n int
		if *dst != nil {
			n = **dst
		}
		failed := len(multierr.Errors(errs))
		num(key, &n)
		if len(multierr.Errors(errs)) == failed {
			*dst = &n
		}
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s%s: invalid value %q, keeping %t", EnvPrefix, key, v, *dst))
			return
		}
		*dst = b
	}

	str("NODE_NAME", &cfg.Node)

	optNum("THREADPOOL_BINDINGS_MIN", &cfg.ThreadPool.Bindings.MinWorkers)
	num("THREADPOOL_BINDINGS_MAX", &cfg.ThreadPool.Bindings.MaxWorkers)
	num("THREADPOOL_BINDINGS_KEEPALIVE_MS", &cfg.ThreadPool.Bindings.KeepAliveMS)
	optNum("THREADPOOL_EVENTS_MIN", &cfg.ThreadPool.Events.MinWorkers)
	num("THREADPOOL_EVENTS_MAX", &cfg.ThreadPool.Events.MaxWorkers)
	num("THREADPOOL_EVENTS_KEEPALIVE_MS", &cfg.ThreadPool.Events.KeepAliveMS)
	num("THREADPOOL_BACKGROUND_SIZE", &cfg.ThreadPool.Background.Size)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	flag("DIAGNOSTICS_ENABLED", &cfg.Diagnostics.Enabled)
	str("DIAGNOSTICS_HOST", &cfg.Diagnostics.Host)
	num("DIAGNOSTICS_PORT", &cfg.Diagnostics.Port)

	return errs
}
