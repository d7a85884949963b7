// Package config provides YAML configuration parsing for PriceWatch.
//
// This package enables running PriceWatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	title: Laptop prices
//	port: 8080
//
//	backend:
//	  url: ${PRICEWATCH_BACKEND_URL:-http://localhost:5000}
//	  timeout: 10s
//	  headers:
//	    X-Api-Key: ${PRICEWATCH_API_KEY:-}
//
//	polling:
//	  interval: 10s
//	  max_checks: 60
//
//	notifications:
//	  max_enabled: 5
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort        = 8080
	defaultInterval    = 10 * time.Second
	defaultMaxChecks   = 60
	defaultMaxEnabled  = 5
	defaultTimeout     = 10 * time.Second
	defaultStopReason  = "Essential container in task exited"
	minPollInterval    = 1 * time.Second
	maxPollInterval    = 1 * time.Hour
	minBackendTimeout  = 1 * time.Second
	backendURLEnvVar   = "PRICEWATCH_BACKEND_URL"
	defaultBackendHint = "set backend.url, --backend or " + backendURLEnvVar
)

// Config is the root configuration structure for PriceWatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] for a
// file-less configuration.
type Config struct {
	// Title is the dashboard title. Defaults to "PriceWatch" if not set.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	Backend       BackendConfig       `yaml:"backend"`
	Polling       PollingConfig       `yaml:"polling"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// BackendConfig locates the price tracker backend API.
type BackendConfig struct {
	// URL is the backend origin, e.g. "https://abc.execute-api.example.com".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// BasePath overrides the path prefix derived from the host ("" for
	// localhost and 127.x, "/dev" otherwise). Set to "" to disable it.
	BasePath *string `yaml:"base_path"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// PollingConfig controls job status polling.
type PollingConfig struct {
	// Interval is the time between two status queries. Defaults to 10s.
	Interval Duration `yaml:"interval"`

	// MaxChecks is the retry ceiling of a session. Defaults to 60.
	MaxChecks int `yaml:"max_checks"`

	// CleanStopReason is the stop reason that marks a successful job.
	// Defaults to "Essential container in task exited".
	CleanStopReason string `yaml:"clean_stop_reason"`
}

// NotificationsConfig controls the LINE notification toggles.
type NotificationsConfig struct {
	// MaxEnabled is the number of items that may be enabled at once.
	// Defaults to 5.
	MaxEnabled int `yaml:"max_enabled"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads, parses and validates a YAML configuration file.
//
// Environment variables in the file are expanded during validation.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads and parses a YAML configuration file and applies defaults
// without validating it, so that callers can override fields first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return decode(data)
}

// Parse parses and validates YAML configuration data.
//
// Environment variables are expanded in the backend URL and header values.
// Defaults are applied to every unset field.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied and the
// backend URL taken from PRICEWATCH_BACKEND_URL, if set. It is not
// validated; callers set the backend URL and call [Config.Validate].
func Default() *Config {
	cfg := &Config{}
	cfg.Backend.URL = os.Getenv(backendURLEnvVar)
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(defaultTimeout)
	}
	if c.Polling.Interval == 0 {
		c.Polling.Interval = Duration(defaultInterval)
	}
	if c.Polling.MaxChecks == 0 {
		c.Polling.MaxChecks = defaultMaxChecks
	}
	if c.Polling.CleanStopReason == "" {
		c.Polling.CleanStopReason = defaultStopReason
	}
	if c.Notifications.MaxEnabled == 0 {
		c.Notifications.MaxEnabled = defaultMaxEnabled
	}
}

// Validate expands environment variables and checks every field.
//
// Validate is safe to call more than once.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if err := c.Backend.validate(); err != nil {
		return err
	}

	if d := c.Polling.Interval.Duration(); d < minPollInterval || d > maxPollInterval {
		return fmt.Errorf("polling.interval must be between %s and %s, got %s", minPollInterval, maxPollInterval, d)
	}
	if c.Polling.MaxChecks < 0 {
		return fmt.Errorf("polling.max_checks must be positive, got %d", c.Polling.MaxChecks)
	}
	if strings.TrimSpace(c.Polling.CleanStopReason) == "" {
		return errors.New("polling.clean_stop_reason cannot be blank")
	}

	if c.Notifications.MaxEnabled < 0 {
		return fmt.Errorf("notifications.max_enabled must be positive, got %d", c.Notifications.MaxEnabled)
	}

	return nil
}

func (b *BackendConfig) validate() error {
	if b.URL == "" {
		return fmt.Errorf("backend.url is required (%s)", defaultBackendHint)
	}
	expanded, err := expandEnvVars(b.URL)
	if err != nil {
		return fmt.Errorf("backend.url: %w", err)
	}
	b.URL = expanded
	if b.URL == "" {
		return fmt.Errorf("backend.url is empty after expansion (%s)", defaultBackendHint)
	}

	parsedURL, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("backend.url: invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("backend.url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("backend.url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("backend.url must have a host")
	}

	if b.BasePath != nil && *b.BasePath != "" && !strings.HasPrefix(*b.BasePath, "/") {
		return fmt.Errorf("backend.base_path must start with \"/\", got %q", *b.BasePath)
	}

	if b.Timeout.Duration() < minBackendTimeout {
		return fmt.Errorf("backend.timeout must be at least %s, got %s", minBackendTimeout, b.Timeout.Duration())
	}

	for k, v := range b.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("backend.headers[%s]: %w", k, err)
		}
		b.Headers[k] = expanded
	}

	return nil
}
