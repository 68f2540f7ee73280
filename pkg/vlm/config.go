package vlm

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible API root.
	BaseURL string

	// APIKey is optional; local Ollama ignores it.
	APIKey string

	// Model is the vision model name.
	Model string

	// MaxTokens caps the answer length.
	MaxTokens int

	// Temperature, when positive, is passed through to the backend.
	Temperature float64

	// Timeout bounds one full query round-trip.
	Timeout time.Duration

	// MaxRetries is the number of retries on transient failures.
	MaxRetries int

	// RetryDelay is the base delay between retries (scaled by attempt).
	RetryDelay time.Duration

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	// Logger receives request diagnostics.
	Logger *slog.Logger
}

// DefaultConfig returns settings tuned for a local Ollama LLaVA.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:11434/v1",
		Model:      "llava",
		MaxTokens:  500,
		Timeout:    120 * time.Second,
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
		Logger:     slog.Default(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option configures the client.
type Option func(*Config)

// WithBaseURL sets the API root.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the vision model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithMaxTokens caps the answer length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithTimeout bounds one query round-trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets the retry budget and base delay.
func WithRetry(max int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = max
		c.RetryDelay = delay
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) { c.HTTPClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
