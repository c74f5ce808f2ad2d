package models

import (
	"net/http"
	"time"
)

// Concurrency constants for file downloads within one asset.
const (
	// DefaultConcurrency is the default number of concurrent file downloads.
	DefaultConcurrency = 4

	// MaxConcurrency is the maximum allowed concurrent file downloads.
	MaxConcurrency = 16

	// DefaultRequestTimeout bounds the wait for response headers of the
	// default HTTP client. File bodies are bounded only by the caller's context.
	DefaultRequestTimeout = 30 * time.Second
)

// Retry configuration constants for failed HTTP requests.
const (
	// MaxRetries is the maximum number of retry attempts for failed requests.
	MaxRetries = 3

	// InitialBackoff is the initial backoff duration before first retry.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum backoff duration between retries.
	MaxBackoff = 4 * time.Second
)

// AcquireOption configures an acquire operation.
type AcquireOption func(*acquireConfig)

// acquireConfig holds configuration for an acquire operation.
type acquireConfig struct {
	// force causes re-download of every file even if the asset is complete.
	force bool

	// concurrency is the number of concurrent file downloads.
	concurrency int

	// progressFn is called with progress updates during download.
	progressFn func(AcquireProgress)
}

// newAcquireConfig returns an acquireConfig with default values.
func newAcquireConfig() *acquireConfig {
	return &acquireConfig{
		concurrency: DefaultConcurrency,
	}
}

// WithForce re-fetches every file even if the asset is already complete.
func WithForce() AcquireOption {
	return func(c *acquireConfig) {
		c.force = true
	}
}

// WithConcurrency sets the number of concurrent file downloads.
// Values are clamped to the range [1, MaxConcurrency].
// Default is DefaultConcurrency (4).
func WithConcurrency(n int) AcquireOption {
	return func(c *acquireConfig) {
		if n < 1 {
			n = 1
		}
		if n > MaxConcurrency {
			n = MaxConcurrency
		}
		c.concurrency = n
	}
}

// WithProgress sets a callback for progress updates during download.
// The callback is invoked from download worker goroutines and must be thread-safe.
func WithProgress(fn func(AcquireProgress)) AcquireOption {
	return func(c *acquireConfig) {
		c.progressFn = fn
	}
}

// ConfirmFunc is asked before any destructive operation. It receives a
// human-readable prompt and the impact of the operation and returns true to
// proceed. A nil ConfirmFunc denies.
type ConfirmFunc func(prompt string, impact Impact) bool

// RemoveOption configures a remove operation.
type RemoveOption func(*removeConfig)

// removeConfig holds configuration for a remove operation.
type removeConfig struct {
	// cascade removes present dependents before a shared asset.
	cascade bool

	// confirm gates every destructive step.
	confirm ConfirmFunc
}

// WithCascade removes the present dependents of a shared asset first, then
// the shared asset itself.
func WithCascade() RemoveOption {
	return func(c *removeConfig) {
		c.cascade = true
	}
}

// WithConfirm sets the confirmation callback. Without it removal is denied.
func WithConfirm(fn ConfirmFunc) RemoveOption {
	return func(c *removeConfig) {
		c.confirm = fn
	}
}

// AlwaysConfirm approves every prompt. Intended for --yes and tests.
func AlwaysConfirm(string, Impact) bool { return true }

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// managerConfig holds configuration for Manager construction.
type managerConfig struct {
	// client fetches files from remote repositories.
	client RepositoryClient

	// httpClient is used by the default hub client.
	httpClient HTTPClient

	// hubEndpoint is the base URL of the default hub client.
	hubEndpoint string

	// hubToken authenticates the default hub client.
	hubToken string

	// logger receives diagnostic log messages.
	logger Logger

	// metrics records operation counters.
	metrics Recorder

	// lockTimeout bounds the wait for the per-family store lock.
	lockTimeout time.Duration
}

// newManagerConfig returns a managerConfig with default values.
func newManagerConfig() *managerConfig {
	return &managerConfig{
		httpClient:  newDefaultHTTPClient(),
		hubEndpoint: DefaultHubEndpoint,
		metrics:     noopRecorder{},
		lockTimeout: DefaultLockTimeout,
	}
}

// newDefaultHTTPClient gives up on a hub that does not answer within
// DefaultRequestTimeout but never cuts off a transfer in progress.
func newDefaultHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = DefaultRequestTimeout
	return &http.Client{Transport: transport}
}

// WithRepositoryClient replaces the default Hugging Face hub client.
func WithRepositoryClient(client RepositoryClient) ManagerOption {
	return func(c *managerConfig) {
		c.client = client
	}
}

// WithHTTPClient sets a custom HTTP client for the default hub client.
// If not set, a client with a DefaultRequestTimeout header timeout is used.
func WithHTTPClient(client HTTPClient) ManagerOption {
	return func(c *managerConfig) {
		c.httpClient = client
	}
}

// WithHub sets the endpoint and access token of the default hub client.
// Empty values keep the defaults.
func WithHub(endpoint, token string) ManagerOption {
	return func(c *managerConfig) {
		if endpoint != "" {
			c.hubEndpoint = endpoint
		}
		c.hubToken = token
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) ManagerOption {
	return func(c *managerConfig) {
		c.logger = logger
	}
}

// WithMetrics sets the recorder for operation counters.
func WithMetrics(r Recorder) ManagerOption {
	return func(c *managerConfig) {
		if r != nil {
			c.metrics = r
		}
	}
}

// WithLockTimeout bounds how long acquire and remove wait for another
// process to release the store. Zero fails immediately.
func WithLockTimeout(d time.Duration) ManagerOption {
	return func(c *managerConfig) {
		c.lockTimeout = d
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
