package config

import (
	"os"
	"testing"
	"time"
)

func clearFisherEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FISHER_BIND", "FISHER_HOOKS_DIR", "FISHER_MAX_THREADS", "FISHER_BEHIND_PROXIES",
		"FISHER_ENABLE_HEALTH", "FISHER_QUEUE_CAP", "FISHER_SHUTDOWN_GRACE",
		"FISHER_AUDIT_PATH", "FISHER_LOG_LEVEL", "FISHER_STATIC_ENV",
	} {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearFisherEnv(t)
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := DefaultConfig()
	if cfg.Bind != want.Bind || cfg.MaxThreads != want.MaxThreads || cfg.QueueCap != want.QueueCap {
		t.Errorf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearFisherEnv(t)
	t.Setenv("FISHER_BIND", ":9999")
	t.Setenv("FISHER_MAX_THREADS", "8")
	t.Setenv("FISHER_BEHIND_PROXIES", "2")
	t.Setenv("FISHER_ENABLE_HEALTH", "false")
	t.Setenv("FISHER_QUEUE_CAP", "0")
	t.Setenv("FISHER_SHUTDOWN_GRACE", "5s")
	t.Setenv("FISHER_STATIC_ENV", "A=1, B=2")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bind != ":9999" {
		t.Errorf("Bind = %q", cfg.Bind)
	}
	if cfg.MaxThreads != 8 {
		t.Errorf("MaxThreads = %d", cfg.MaxThreads)
	}
	if cfg.BehindProxies != 2 {
		t.Errorf("BehindProxies = %d", cfg.BehindProxies)
	}
	if cfg.EnableHealth {
		t.Error("EnableHealth should be false")
	}
	if cfg.QueueCap != 0 {
		t.Errorf("QueueCap = %d, want 0 (unbounded)", cfg.QueueCap)
	}
	if cfg.ShutdownGrace != 5*time.Second {
		t.Errorf("ShutdownGrace = %s", cfg.ShutdownGrace)
	}
	if cfg.StaticEnv["A"] != "1" || cfg.StaticEnv["B"] != "2" {
		t.Errorf("StaticEnv = %v", cfg.StaticEnv)
	}
}

func TestLoadFromEnvInvalidMaxThreads(t *testing.T) {
	clearFisherEnv(t)
	t.Setenv("FISHER_MAX_THREADS", "not-a-number")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("expected a configuration error for a malformed FISHER_MAX_THREADS")
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"empty bind", func(c *Config) { c.Bind = "" }},
		{"empty hooks dir", func(c *Config) { c.HooksDir = "" }},
		{"zero max threads", func(c *Config) { c.MaxThreads = 0 }},
		{"negative behind proxies", func(c *Config) { c.BehindProxies = -1 }},
		{"negative queue cap", func(c *Config) { c.QueueCap = -1 }},
		{"zero shutdown grace", func(c *Config) { c.ShutdownGrace = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() should reject %s", tc.name)
			}
		})
	}
}

func TestLoadFromEnvMalformedStaticEnv(t *testing.T) {
	clearFisherEnv(t)
	t.Setenv("FISHER_STATIC_ENV", "not-a-kv-pair")
	if _, err := LoadFromEnv(); err == nil {
		t.Error("expected a configuration error for malformed FISHER_STATIC_ENV")
	}
}
