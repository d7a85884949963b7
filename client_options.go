package pricewatch

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// clientConfig holds mutable state during client construction.
type clientConfig struct {
	headers     map[string]string
	timeout     time.Duration
	basePath    string
	basePathSet bool
	httpClient  *http.Client
}

// ClientOption is a function that configures a [Client] during construction.
//
// Options return an error if validation fails.
type ClientOption func(*clientConfig) error

// WithHeaders adds custom HTTP headers to every backend call.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	client, err := pricewatch.NewClient(url,
//	    pricewatch.WithHeaders("X-Api-Key", key),
//	)
func WithHeaders(keyValues ...string) ClientOption {
	return func(cfg *clientConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) ClientOption {
	return func(cfg *clientConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithBasePath overrides the path prefix derived by [DefaultBasePath].
//
// An empty path disables the prefix. A non-empty path must start with "/".
func WithBasePath(p string) ClientOption {
	return func(cfg *clientConfig) error {
		if p != "" && !strings.HasPrefix(p, "/") {
			return errors.New(`base path must start with "/"`)
		}
		cfg.basePath = strings.TrimSuffix(p, "/")
		cfg.basePathSet = true
		return nil
	}
}

// WithHTTPClient sets the underlying [http.Client], e.g. for custom
// transports in tests. Its Timeout, if any, applies on top of [WithTimeout].
//
// Returns an error if the client is nil.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(cfg *clientConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}
