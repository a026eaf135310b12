package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const yamlConfig = `
node: kitchen
threadpool:
  events:
    min_workers: 2
    max_workers: 6
    keep_alive_ms: 500
logging:
  level: debug
bindings:
  heartbeat:
    interval: "1000"
items:
  - item: Clock
    binding: heartbeat
    config: datetime
`

const tomlConfig = `
node = "kitchen"

[threadpool.events]
min_workers = 2
max_workers = 6
keep_alive_ms = 500

[logging]
level = "debug"

[bindings.heartbeat]
interval = "1000"

[[items]]
item = "Clock"
binding = "heartbeat"
config = "datetime"
`

const jsonConfig = `{
  "node": "kitchen",
  "threadpool": {"events": {"min_workers": 2, "max_workers": 6, "keep_alive_ms": 500}},
  "logging": {"level": "debug"},
  "bindings": {"heartbeat": {"interval": "1000"}},
  "items": [{"item": "Clock", "binding": "heartbeat", "config": "datetime"}]
}`

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", yamlConfig},
		{"yml", "config.yml", yamlConfig},
		{"toml", "config.toml", tomlConfig},
		{"json", "config.json", jsonConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, warn, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if warn != nil {
				t.Errorf("unexpected warnings: %v", warn)
			}

			if cfg.Node != "kitchen" {
				t.Errorf("node = %q", cfg.Node)
			}
			ev := cfg.ThreadPool.Events
			if ev.Min() != 2 || ev.MaxWorkers != 6 || ev.KeepAlive() != 500*time.Millisecond {
				t.Errorf("events pool = %+v", ev)
			}
			if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
				t.Errorf("logging = %+v", cfg.Logging)
			}
			if cfg.Bindings["heartbeat"]["interval"] != "1000" {
				t.Errorf("bindings = %v", cfg.Bindings)
			}
			if len(cfg.Items) != 1 || cfg.Items[0] != (ItemBinding{Item: "Clock", Binding: "heartbeat", Config: "datetime"}) {
				t.Errorf("items = %v", cfg.Items)
			}

			// untouched sections fall back to defaults
			if !samePool(cfg.ThreadPool.Bindings, *defaultPool()) {
				t.Errorf("bindings pool = %+v", cfg.ThreadPool.Bindings)
			}
		})
	}
}

func defaultPool() *PoolConfig {
	p := &PoolConfig{}
	p.ApplyDefaults()
	return p
}

func samePool(a, b PoolConfig) bool {
	return a.Min() == b.Min() && a.MaxWorkers == b.MaxWorkers && a.KeepAliveMS == b.KeepAliveMS
}

func intPtr(n int) *int { return &n }

func TestLoadPoolSizing(t *testing.T) {
	tests := []struct {
		name     string
		events   string
		wantMin  int
		wantMax  int
		errorMsg string
	}{
		{"max only clamps default min", "max_workers: 2", 2, 2, ""},
		{"explicit zero min", "min_workers: 0\n    max_workers: 2", 0, 2, ""},
		{"min only keeps default max", "min_workers: 1", 1, 16, ""},
		{"explicit min above max", "min_workers: 3\n    max_workers: 2", 0, 0, "min_workers (3) must not exceed max_workers (2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "threadpool:\n  events:\n    " + tt.events + "\n"
			cfg, _, err := Load(writeFile(t, "config.yaml", content))
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ev := cfg.ThreadPool.Events
			if ev.Min() != tt.wantMin || ev.MaxWorkers != tt.wantMax {
				t.Errorf("events pool min=%d max=%d, want min=%d max=%d", ev.Min(), ev.MaxWorkers, tt.wantMin, tt.wantMax)
			}
			if p := cfg.ThreadPool.Pools().Events; p.MinWorkers != tt.wantMin {
				t.Errorf("threadpool min = %d", p.MinWorkers)
			}
		})
	}
}

func TestLoadPaths(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, _, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ThreadPool.Background.Size == 0 || cfg.Logging.Level == "" {
			t.Errorf("defaults not applied: %+v", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, _, err := Load(writeFile(t, "config.ini", "node=x"))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		if _, _, err := Load(writeFile(t, "config.yaml", "node: [")); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "level must be one of"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "format must be one of"},
		{"port too high", func(c *Config) { c.Diagnostics.Port = 70000 }, "port must be at most 65535"},
		{"negative workers", func(c *Config) { c.ThreadPool.Events.MinWorkers = intPtr(-1) }, "thread_pool.events.min_workers"},
		{"min above max", func(c *Config) {
			c.ThreadPool.Bindings.MinWorkers = intPtr(10)
			c.ThreadPool.Bindings.MaxWorkers = 2
		}, "must not exceed max_workers"},
		{"item without binding", func(c *Config) {
			c.Items = []ItemBinding{{Item: "Clock", Config: "datetime"}}
		}, "items[0].binding"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errorMsg)
			}
			var verrs *ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected *ValidationErrors, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"HOMEBUS_NODE_NAME":                  "garage",
		"HOMEBUS_THREADPOOL_EVENTS_MAX":      "32",
		"HOMEBUS_THREADPOOL_BINDINGS_MIN":    "lots",
		"HOMEBUS_THREADPOOL_BACKGROUND_SIZE": "-2",
		"HOMEBUS_LOG_LEVEL":                  "warn",
		"HOMEBUS_DIAGNOSTICS_ENABLED":        "true",
		"HOMEBUS_DIAGNOSTICS_PORT":           "9090",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	warn := applyEnvOverrides(cfg, lookup)

	if cfg.Node != "garage" {
		t.Errorf("node = %q", cfg.Node)
	}
	if cfg.ThreadPool.Events.MaxWorkers != 32 {
		t.Errorf("events max = %d", cfg.ThreadPool.Events.MaxWorkers)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if !cfg.Diagnostics.Enabled || cfg.Diagnostics.Port != 9090 {
		t.Errorf("diagnostics = %+v", cfg.Diagnostics)
	}

	// invalid values keep the previous setting and are reported
	if cfg.ThreadPool.Bindings.Min() != defaultPool().Min() {
		t.Errorf("bindings min = %d", cfg.ThreadPool.Bindings.Min())
	}
	if cfg.ThreadPool.Background.Size != Default().ThreadPool.Background.Size {
		t.Errorf("background size = %d", cfg.ThreadPool.Background.Size)
	}
	if n := len(multierr.Errors(warn)); n != 2 {
		t.Errorf("expected 2 warnings, got %d: %v", n, warn)
	}
}

func TestLoadAppliesEnv(t *testing.T) {
	t.Setenv("HOMEBUS_THREADPOOL_EVENTS_MAX", "12")
	t.Setenv("HOMEBUS_DIAGNOSTICS_PORT", "not-a-port")

	cfg, warn, err := Load(writeFile(t, "config.yaml", yamlConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ThreadPool.Events.MaxWorkers != 12 {
		t.Errorf("events max = %d", cfg.ThreadPool.Events.MaxWorkers)
	}
	if warn == nil || !strings.Contains(warn.Error(), "HOMEBUS_DIAGNOSTICS_PORT") {
		t.Errorf("expected port warning, got %v", warn)
	}
	if cfg.Diagnostics.Port != 8081 {
		t.Errorf("port = %d", cfg.Diagnostics.Port)
	}
}

func TestPools(t *testing.T) {
	cfg := Default()
	cfg.ThreadPool.Events.KeepAliveMS = 250
	cfg.ThreadPool.Background.Size = 3

	pools := cfg.ThreadPool.Pools()
	if pools.Events.KeepAlive != 250*time.Millisecond {
		t.Errorf("keep-alive = %s", pools.Events.KeepAlive)
	}
	if pools.Background.Size != 3 {
		t.Errorf("background size = %d", pools.Background.Size)
	}
	if pools.Bindings.MaxWorkers != cfg.ThreadPool.Bindings.MaxWorkers {
		t.Errorf("bindings max = %d", pools.Bindings.MaxWorkers)
	}
}

func TestDumpExample(t *testing.T) {
	var buf bytes.Buffer
	if err := DumpExample(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "# ====") {
		t.Error("expected header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(buf.Bytes(), &cfg); err != nil {
		t.Fatalf("example is not valid YAML: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("example does not validate: %v", err)
	}
	if cfg.Bindings["heartbeat"]["interval"] == "" || len(cfg.Items) != 2 {
		t.Errorf("example missing bindings: %+v", cfg)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON record, got %q", out)
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}
