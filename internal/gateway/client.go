package gateway

import (
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// Option configures the HTTP client returned by NewHTTPClient.
type Option func(*retryablehttp.Client)

// WithRetryMax sets the maximum number of transport-level retries.
// The gateway uses zero: live online failures are surfaced, not retried;
// the replay client keeps a small retry budget for transient errors.
func WithRetryMax(retries int) Option {
	return func(client *retryablehttp.Client) {
		client.RetryMax = retries
	}
}

// WithRetryWaitMax sets the maximum wait between retries.
func WithRetryWaitMax(waitMax time.Duration) Option {
	return func(client *retryablehttp.Client) {
		client.RetryWaitMax = waitMax
	}
}

// WithClientLogger sets the logger for transport-level retry chatter.
func WithClientLogger(logger *log.Logger) Option {
	return func(client *retryablehttp.Client) {
		client.Logger = logger
	}
}

// WithClientTimeout sets the overall per-request timeout (default 30s).
func WithClientTimeout(timeout time.Duration) Option {
	return func(client *retryablehttp.Client) {
		client.HTTPClient.Timeout = timeout
	}
}

// NewHTTPClient builds an HTTP client with pooled transport and a 30-second
// overall timeout. The returned client has the stdlib http.Client interface
// with retryablehttp logic internally; retries default to off so the
// gateway's failure semantics stay visible to callers.
func NewHTTPClient(options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.HTTPClient.Timeout = 30 * time.Second
	retryClient.RetryMax = 0
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = retryClient.HTTPClient.Timeout
	return client
}
