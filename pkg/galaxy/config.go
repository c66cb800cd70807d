// Package galaxy provides a Go client for the REST API of a Galaxy-style
// workflow execution manager: histories, data libraries, workflows and
// workflow invocations.
package galaxy

import "time"

// DefaultURL is the base URL used when none is configured.
const DefaultURL = "http://localhost:8080"

// Default client settings.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryDelay        = 1 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 10
)

// Config holds all configuration for the Galaxy API client.
type Config struct {
	// URL is the base URL of the Galaxy server, without the /api suffix.
	URL string

	// APIKey is sent in the x-api-key header of every request.
	APIKey string

	// Timeout is the HTTP client timeout for each request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for failed requests.
	MaxRetries int

	// RetryDelay is the initial delay between retries (exponential backoff applied).
	RetryDelay time.Duration

	// RequestsPerSecond limits the request rate against the server. Zero or
	// negative disables limiting.
	RequestsPerSecond float64

	// Burst is the rate limiter bucket size.
	Burst int
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() Config {
	return Config{
		URL:               DefaultURL,
		Timeout:           DefaultTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Burst:             DefaultBurst,
	}
}

// WithAPIKey returns a copy of the config with the specified API key.
func (c Config) WithAPIKey(key string) Config {
	c.APIKey = key
	return c
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithRetries returns a copy of the config with the specified retry settings.
func (c Config) WithRetries(maxRetries int, retryDelay time.Duration) Config {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
	return c
}

// WithRateLimit returns a copy of the config with the specified rate limit.
func (c Config) WithRateLimit(perSecond float64, burst int) Config {
	c.RequestsPerSecond = perSecond
	c.Burst = burst
	return c
}
