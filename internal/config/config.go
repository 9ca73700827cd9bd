// Package config loads and validates fisher's process configuration from
// environment variables: each variable is parsed, range-checked, and
// reported through a wrapped error when invalid.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all operator-tunable settings for a fisher process.
type Config struct {
	// Bind is the address the HTTP front-end listens on, e.g. ":8766".
	Bind string
	// HooksDir is the directory scanned for hook scripts.
	HooksDir string
	// MaxThreads is the fixed size of the worker pool. Must be >= 1.
	MaxThreads int
	// BehindProxies is the proxy trust depth: 0 uses the TCP peer address,
	// N>0 uses the N-th rightmost entry of X-Forwarded-For.
	BehindProxies int
	// EnableHealth toggles the GET /health endpoint.
	EnableHealth bool
	// QueueCap bounds the number of queued jobs per hook; 0 means unbounded.
	QueueCap int
	// ShutdownGrace bounds how long Stop waits for in-flight jobs before
	// sending termination signals to child processes.
	ShutdownGrace time.Duration
	// StaticEnv is operator-configured environment merged into every job,
	// taking precedence over provider and inherited environment.
	StaticEnv map[string]string
	// AuditPath is the SQLite file backing the append-only execution log.
	// Empty disables the audit trail.
	AuditPath string
	// LogLevel controls the verbosity of structured logging.
	LogLevel string
}

// DefaultConfig returns the configuration used when no environment overrides
// are present.
func DefaultConfig() Config {
	return Config{
		Bind:          ":8766",
		HooksDir:      "./hooks",
		MaxThreads:    4,
		BehindProxies: 0,
		EnableHealth:  true,
		QueueCap:      256,
		ShutdownGrace: 10 * time.Second,
		StaticEnv:     map[string]string{},
		AuditPath:     "",
		LogLevel:      "info",
	}
}

// LoadFromEnv starts from DefaultConfig and overlays any FISHER_* environment
// variables that are set, returning a configuration error naming the first
// invalid variable encountered.
func LoadFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := lookup("FISHER_BIND"); ok {
		cfg.Bind = v
	}
	if v, ok := lookup("FISHER_HOOKS_DIR"); ok {
		cfg.HooksDir = v
	}
	if v, ok := lookup("FISHER_MAX_THREADS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_MAX_THREADS: %w", err)
		}
		cfg.MaxThreads = n
	}
	if v, ok := lookup("FISHER_BEHIND_PROXIES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_BEHIND_PROXIES: %w", err)
		}
		cfg.BehindProxies = n
	}
	if v, ok := lookup("FISHER_ENABLE_HEALTH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_ENABLE_HEALTH: %w", err)
		}
		cfg.EnableHealth = b
	}
	if v, ok := lookup("FISHER_QUEUE_CAP"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_QUEUE_CAP: %w", err)
		}
		cfg.QueueCap = n
	}
	if v, ok := lookup("FISHER_SHUTDOWN_GRACE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_SHUTDOWN_GRACE: %w", err)
		}
		cfg.ShutdownGrace = d
	}
	if v, ok := lookup("FISHER_AUDIT_PATH"); ok {
		cfg.AuditPath = v
	}
	if v, ok := lookup("FISHER_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("FISHER_STATIC_ENV"); ok {
		env, err := parseStaticEnv(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: FISHER_STATIC_ENV: %w", err)
		}
		cfg.StaticEnv = env
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseStaticEnv parses a comma-separated KEY=VALUE list.
func parseStaticEnv(v string) (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(v) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(v, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, val, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed entry %q, expected KEY=VALUE", pair)
		}
		out[k] = val
	}
	return out, nil
}

// Validate range-checks the configuration, returning a descriptive error for
// the first field found invalid.
func (c Config) Validate() error {
	if c.Bind == "" {
		return fmt.Errorf("config: bind address must not be empty")
	}
	if c.HooksDir == "" {
		return fmt.Errorf("config: hooks directory must not be empty")
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("config: max_threads must be >= 1, got %d", c.MaxThreads)
	}
	if c.BehindProxies < 0 {
		return fmt.Errorf("config: behind_proxies must be >= 0, got %d", c.BehindProxies)
	}
	if c.QueueCap < 0 {
		return fmt.Errorf("config: queue_cap must be >= 0, got %d", c.QueueCap)
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("config: shutdown_grace must be > 0, got %s", c.ShutdownGrace)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
