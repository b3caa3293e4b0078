package llmstream

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed config/defaults.yaml
var defaultsYAML []byte

// Config carries the connection parameters for one transport client. There
// is no ambient global configuration: callers construct a Config (or load
// one from YAML) and pass it to the transport explicitly.
type Config struct {
	// BaseURL is prepended to relative endpoints. Absolute endpoints are
	// used as-is.
	BaseURL string

	// Headers are applied to every request (credentials, API version, etc.).
	Headers map[string]string

	// StreamTimeout is the overall wall-clock budget for one streaming
	// exchange, connection establishment included.
	StreamTimeout time.Duration

	// IdleTimeout is the maximum gap allowed between successive chunks once
	// the connection is established.
	IdleTimeout time.Duration

	// RequestTimeout is the budget for one non-streaming exchange attempt.
	RequestTimeout time.Duration

	// MaxRetries is the number of additional attempts on retryable failures
	// of the non-streaming path. Zero means a single attempt.
	MaxRetries int

	// RetryBaseDelay scales the linear backoff between attempts: attempt n
	// sleeps RetryBaseDelay * n before retrying.
	RetryBaseDelay time.Duration

	// StrictDecoding rejects non-JSON payloads with an invalid-stream-format
	// error instead of passing them through as raw text.
	StrictDecoding bool

	// Logger receives transport diagnostics. Defaults to a warn-level
	// logrus logger writing to stderr.
	Logger *logrus.Logger

	// HTTPClient overrides the underlying HTTP client when set.
	HTTPClient *http.Client
}

// fileConfig mirrors the YAML layout. Durations are strings in
// time.ParseDuration format (e.g. "90s", "1500ms").
type fileConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Headers        map[string]string `yaml:"headers"`
	StreamTimeout  string            `yaml:"stream_timeout"`
	IdleTimeout    string            `yaml:"idle_timeout"`
	RequestTimeout string            `yaml:"request_timeout"`
	MaxRetries     *int              `yaml:"max_retries"`
	RetryBaseDelay string            `yaml:"retry_base_delay"`
	StrictDecoding *bool             `yaml:"strict_decoding"`
	LogLevel       string            `yaml:"log_level"`
}

// DefaultConfig returns the embedded default configuration. The embedded
// YAML is part of the build; failure to parse it is a programming error.
func DefaultConfig() Config {
	cfg, err := parseConfig(defaultsYAML, Config{})
	if err != nil {
		panic(fmt.Sprintf("llmstream: embedded defaults are malformed: %v", err))
	}
	return cfg
}

// LoadConfig reads a YAML configuration file and overlays it on the
// embedded defaults. Unset fields keep their default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &TransportError{
			Kind:    KindConfiguration,
			Message: fmt.Sprintf("reading config file %s: %v", path, err),
			Err:     err,
		}
	}
	return parseConfig(data, DefaultConfig())
}

// parseConfig unmarshals data and overlays it on base.
func parseConfig(data []byte, base Config) (Config, error) {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, &TransportError{
			Kind:    KindConfiguration,
			Message: fmt.Sprintf("parsing config: %v", err),
			Err:     err,
		}
	}

	cfg := base
	if fc.BaseURL != "" {
		cfg.BaseURL = fc.BaseURL
	}
	if len(fc.Headers) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(fc.Headers))
		}
		for k, v := range fc.Headers {
			cfg.Headers[k] = v
		}
	}
	if fc.MaxRetries != nil {
		cfg.MaxRetries = *fc.MaxRetries
	}
	if fc.StrictDecoding != nil {
		cfg.StrictDecoding = *fc.StrictDecoding
	}

	for _, d := range []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{fc.StreamTimeout, &cfg.StreamTimeout, "stream_timeout"},
		{fc.IdleTimeout, &cfg.IdleTimeout, "idle_timeout"},
		{fc.RequestTimeout, &cfg.RequestTimeout, "request_timeout"},
		{fc.RetryBaseDelay, &cfg.RetryBaseDelay, "retry_base_delay"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, &TransportError{
				Kind:    KindConfiguration,
				Message: fmt.Sprintf("parsing %s %q: %v", d.name, d.raw, err),
				Err:     err,
			}
		}
		*d.dst = parsed
	}

	if fc.LogLevel != "" {
		level, err := logrus.ParseLevel(fc.LogLevel)
		if err != nil {
			return Config{}, &TransportError{
				Kind:    KindConfiguration,
				Message: fmt.Sprintf("parsing log_level %q: %v", fc.LogLevel, err),
				Err:     err,
			}
		}
		logger := newDefaultLogger()
		logger.SetLevel(level)
		cfg.Logger = logger
	}

	return cfg, nil
}

// WithDefaults fills any unset fields from the embedded defaults and
// guarantees a usable logger. The receiver is not modified.
func (c Config) WithDefaults() Config {
	defaults := DefaultConfig()
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = defaults.StreamTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if c.Logger == nil {
		c.Logger = newDefaultLogger()
	}
	return c
}

func newDefaultLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return logger
}
