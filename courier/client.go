package courier

import (
	"net/http"
)

// Client is a high-level HTTP client with fluent request building,
// retry orchestration, OpenTelemetry instrumentation, and opt-in
// circuit breaking, rate limiting, and request coalescing.
//
// A Client is safe for concurrent use: its configuration is read-only
// after New returns and no mutable state is shared between logical
// requests.
//
// Create a Client using New():
//
//	client := courier.New(
//	    courier.WithBaseURL("https://api.example.com"),
//	    courier.WithServiceName("payment-service"),
//	    courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
//	)
//
//	resp, err := client.Request("CreatePayment").
//	    Path("/payments").
//	    Body(payment).
//	    Post(ctx)
type Client struct {
	// httpClient is the underlying HTTP client with transport chain.
	httpClient *http.Client

	// config holds all client configuration.
	config *internalConfig
}

// HTTP returns the underlying *http.Client for advanced use cases.
//
// Use this when you need to pass the client to third-party libraries
// expecting *http.Client, or to make requests without the fluent
// builder. Note that requests made this way get no composed timeout
// budget; supply your own context deadline.
func (c *Client) HTTP() *http.Client {
	return c.httpClient
}

// Request creates a new RequestBuilder for the given operation name.
//
// The operation name is used for debug logging identification.
//
// Example:
//
//	resp, err := client.Request("CreateUser").
//	    Path("/users").
//	    Body(user).
//	    Post(ctx)
func (c *Client) Request(operationName string) *RequestBuilder {
	return &RequestBuilder{
		client:        c,
		operationName: operationName,
		headers:       make(http.Header),
		pathParams:    make(map[string]string),
	}
}

// New creates a Client with the full transport chain assembled from the
// supplied options.
//
// The chain, innermost first: base transport (rate-limited when
// configured) → retry orchestrator → circuit breaker → coalescing →
// OpenTelemetry instrumentation. The breaker sits outside the retry
// loop so one logical request counts once toward tripping; the
// instrumentation is outermost so its span covers all attempts.
//
// Example:
//
//	client := courier.New(
//	    courier.WithBaseURL("https://api.example.com"),
//	    courier.WithRetryPolicy(courier.AggressiveRetryPolicy()),
//	    courier.WithCircuitBreaker(courier.DefaultBreakerConfig()),
//	)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	base := cfg.BaseTransport
	if cfg.MockTransport != nil {
		base = cfg.MockTransport
	}
	if base == nil {
		base = http.DefaultTransport
	}

	chain := newRateLimitTransport(base, cfg)
	chain = newRetryTransport(chain, cfg)
	chain = newCircuitBreakerTransport(chain, cfg)
	chain = newCoalesceTransport(chain, cfg)
	instrumented := newOtelTransport(chain, cfg)

	// No http.Client.Timeout: the composed per-request context owns
	// the timeout budget so it can span retries and backoff waits.
	httpClient := &http.Client{
		Transport: instrumented,
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// NewTransport creates an instrumented http.RoundTripper for use with a
// custom http.Client. The full chain (rate limit, retry, breaker,
// coalescing, instrumentation) is assembled around base.
//
// Requests issued through the returned transport get retry behavior
// from the client-wide policy, but no composed timeout budget; supply
// context deadlines yourself.
func NewTransport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := newConfig(opts...)

	if base == nil {
		base = http.DefaultTransport
	}

	chain := newRateLimitTransport(base, cfg)
	chain = newRetryTransport(chain, cfg)
	chain = newCircuitBreakerTransport(chain, cfg)
	chain = newCoalesceTransport(chain, cfg)
	return newOtelTransport(chain, cfg)
}
