// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	StaticDir      string // built marketing site; empty disables static serving
	AllowedOrigins []string
	Relay          RelayConfig
	Webhook        WebhookConfig
	RateLimit      RateLimitConfig
}

// RelayConfig controls the session response relay windows.
type RelayConfig struct {
	Retention       time.Duration
	Inactivity      time.Duration
	MaxWait         time.Duration
	PollInterval    time.Duration
	CloseGrace      time.Duration
	PollStreakReset time.Duration
	CloseSentinel   string
	SweepInterval   time.Duration // 0 = purge only on requests
	DebugTraceSize  int
}

// WebhookConfig controls the outbound close notification.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

// RateLimitConfig controls per-IP limits on widget activity (PUT). Webhook
// deliveries all arrive from one automation host and are never limited.
// RPS 0 disables the limiter.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		StaticDir:      getEnv("STATIC_DIR", ""),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Relay: RelayConfig{
			Retention:       getEnvDuration("RELAY_RETENTION", 5*time.Minute),
			Inactivity:      getEnvDuration("RELAY_INACTIVITY", 5*time.Minute),
			MaxWait:         getEnvDuration("RELAY_MAX_WAIT", 60*time.Second),
			PollInterval:    getEnvDuration("RELAY_POLL_INTERVAL", 2*time.Second),
			CloseGrace:      getEnvDuration("RELAY_CLOSE_GRACE", 30*time.Second),
			PollStreakReset: getEnvDuration("RELAY_POLL_STREAK_RESET", 30*time.Second),
			CloseSentinel:   getEnv("RELAY_CLOSE_SENTINEL", "/delete"),
			SweepInterval:   getEnvDuration("RELAY_SWEEP_INTERVAL", 0),
			DebugTraceSize:  getEnvInt("RELAY_DEBUG_TRACE_SIZE", 50),
		},
		Webhook: WebhookConfig{
			URL:     getEnv("WEBHOOK_URL", ""),
			Timeout: getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 0),
			Burst: getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	r := c.Relay
	if r.Retention <= 0 {
		return fmt.Errorf("RELAY_RETENTION must be > 0")
	}
	if r.Inactivity <= 0 {
		return fmt.Errorf("RELAY_INACTIVITY must be > 0")
	}
	if r.MaxWait <= 0 {
		return fmt.Errorf("RELAY_MAX_WAIT must be > 0")
	}
	if r.PollInterval <= 0 {
		return fmt.Errorf("RELAY_POLL_INTERVAL must be > 0")
	}
	if r.Retention < r.Inactivity {
		// A PUT-only session would be forgotten before it could be closed.
		return fmt.Errorf("RELAY_RETENTION (%v) cannot be shorter than RELAY_INACTIVITY (%v)", r.Retention, r.Inactivity)
	}
	if r.CloseGrace <= 0 {
		return fmt.Errorf("RELAY_CLOSE_GRACE must be > 0")
	}
	if r.PollStreakReset < 0 || r.SweepInterval < 0 {
		return fmt.Errorf("RELAY_POLL_STREAK_RESET and RELAY_SWEEP_INTERVAL cannot be negative")
	}
	if strings.TrimSpace(r.CloseSentinel) == "" {
		return fmt.Errorf("RELAY_CLOSE_SENTINEL cannot be empty")
	}
	if r.DebugTraceSize <= 0 {
		return fmt.Errorf("RELAY_DEBUG_TRACE_SIZE must be > 0")
	}
	if c.Webhook.URL != "" && c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must be > 0")
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST cannot be negative")
	}
	return nil
}

// RateLimitEnabled returns true if widget activity is rate limited.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit.RPS > 0 && c.RateLimit.Burst > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("90s") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
