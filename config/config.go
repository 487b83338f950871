// Package config loads runtime settings from the environment and .env files.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Rizky-Iqbal36/raw-blogs/internal/reliability"
)

// Prefix is prepended to every environment variable name
const Prefix = "DECORATORS_"

// Config holds the settings shared by the command line tools
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	Verbose   bool   `env:"VERBOSE" envDefault:"false"`

	AuditURL      string `env:"AUDIT_AMQP_URL"`
	AuditExchange string `env:"AUDIT_EXCHANGE" envDefault:"interceptors.audit"`

	RetryAttempts   int           `env:"RETRY_ATTEMPTS" envDefault:"0"`
	RetryPolicy     string        `env:"RETRY_POLICY" envDefault:"fixed"`
	RetryDelay      time.Duration `env:"RETRY_DELAY" envDefault:"100ms"`
	RetryMaxDelay   time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5s"`
	RetryMultiplier float64       `env:"RETRY_MULTIPLIER" envDefault:"2"`

	// BreakerThreshold is the failure count that opens the circuit; 0 disables it
	BreakerThreshold        int           `env:"BREAKER_THRESHOLD" envDefault:"0"`
	BreakerSuccessThreshold int           `env:"BREAKER_SUCCESS_THRESHOLD" envDefault:"1"`
	BreakerTimeout          time.Duration `env:"BREAKER_TIMEOUT" envDefault:"30s"`

	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"0s"`
}

// Retry policy names
const (
	RetryFixed       = "fixed"
	RetryLinear      = "linear"
	RetryExponential = "exponential"
)

// Load reads the given .env files, skipping missing ones, and parses
// the environment into a Config. Variables already set in the process
// environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative, got %d", c.RetryAttempts)
	}
	if c.RetryDelay < 0 || c.RetryMaxDelay < 0 || c.CallTimeout < 0 || c.BreakerTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	switch strings.ToLower(c.RetryPolicy) {
	case "", RetryFixed, RetryLinear:
	case RetryExponential:
		if c.RetryMultiplier < 1 {
			return fmt.Errorf("retry multiplier must be at least 1, got %v", c.RetryMultiplier)
		}
	default:
		return fmt.Errorf("unknown retry policy %q", c.RetryPolicy)
	}
	if c.BreakerThreshold < 0 {
		return fmt.Errorf("breaker threshold must not be negative, got %d", c.BreakerThreshold)
	}
	if c.BreakerThreshold > 0 && c.BreakerSuccessThreshold < 1 {
		return fmt.Errorf("breaker success threshold must be at least 1, got %d", c.BreakerSuccessThreshold)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// NewRetryPolicy builds the configured retry policy
func (c *Config) NewRetryPolicy() reliability.RetryPolicy {
	switch strings.ToLower(c.RetryPolicy) {
	case RetryLinear:
		return reliability.NewLinearBackoff(c.RetryDelay, c.RetryAttempts)
	case RetryExponential:
		return reliability.NewExponentialBackoff(c.RetryDelay, c.RetryMaxDelay, c.RetryMultiplier, c.RetryAttempts)
	default:
		return reliability.NewFixedDelay(c.RetryDelay, c.RetryAttempts)
	}
}

// NewCircuitBreaker builds a breaker from the Breaker* settings
func (c *Config) NewCircuitBreaker(name string, listeners ...reliability.StateChangeListener) *reliability.CircuitBreaker {
	opts := []reliability.CircuitBreakerOption{
		reliability.WithName(name),
		reliability.WithFailureThreshold(c.BreakerThreshold),
		reliability.WithSuccessThreshold(c.BreakerSuccessThreshold),
		reliability.WithTimeout(c.BreakerTimeout),
	}
	for _, l := range listeners {
		opts = append(opts, reliability.WithListener(l))
	}
	return reliability.NewCircuitBreaker(opts...)
}

// Logger builds a slog.Logger writing to w
func (c *Config) Logger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	if c.Verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", s, err)
	}
	return level, nil
}
