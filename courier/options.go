package courier

import (
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/lumen-labs/courier-go/courier"

	// DefaultTimeout is the default per-request timeout budget. The
	// budget spans the entire attempt sequence of a logical request,
	// including backoff waits; it is never reset per attempt.
	DefaultTimeout = 15 * time.Second
)

// internalConfig holds all client configuration. It is read-only after
// New returns and shared by reference between concurrent requests.
type internalConfig struct {
	// === Request Construction ===

	// BaseURL is prepended to request paths.
	BaseURL string

	// DefaultHeaders are applied to all requests before per-request
	// headers.
	DefaultHeaders http.Header

	// Timeout is the default timeout budget per logical request.
	// Zero means no timeout. Overridable per request via
	// RequestBuilder.Timeout.
	Timeout time.Duration

	// === Transport Chain ===

	// BaseTransport is the externally supplied transport primitive.
	// If nil, http.DefaultTransport is used.
	BaseTransport http.RoundTripper

	// MockTransport, when set, replaces BaseTransport. Test use only.
	MockTransport *MockTransport

	// === Retry ===

	// RetryPolicy is the client-wide default policy. Disabled unless
	// configured; per-request RetrySpec overrides take precedence.
	RetryPolicy RetryPolicy

	// RetryBackOff, when set, builds a fresh backoff strategy per
	// logical request, replacing the policy's exponential backoff
	// computation. A factory is required (rather than a shared
	// instance) because strategies are stateful and requests run
	// concurrently. Retry-After hints still win when honored.
	RetryBackOff func() backoff.BackOff

	// === Resilience Extras ===

	// RateLimitConfig enables the client-level rate limit transport.
	RateLimitConfig *RateLimitConfig

	// BreakerConfig enables the circuit breaker transport.
	BreakerConfig *BreakerConfig

	// CoalesceRequests enables in-flight deduplication of idempotent
	// requests.
	CoalesceRequests bool

	// === Hooks ===

	// Hooks run per attempt inside the retry orchestrator.
	Hooks hookChain

	// === Observability ===

	// ServiceName identifies this client on spans and metrics.
	ServiceName string

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// MeterProvider defaults to the global provider.
	MeterProvider metric.MeterProvider

	// Tracer is created from TracerProvider.
	Tracer trace.Tracer

	// Meter is created from MeterProvider.
	Meter metric.Meter

	// Metrics holds the metric instruments.
	Metrics *metrics

	// Propagators configures context propagation.
	// Default: TraceContext + Baggage (W3C standard).
	Propagators propagation.TextMapPropagator

	// Debug enables request/response logging via zerolog.
	Debug bool
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		Timeout:        DefaultTimeout,
		DefaultHeaders: make(http.Header),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Initialize tracer and meter after options are applied.
	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Initialize metrics (nil on failure; recorders tolerate nil).
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	if cfg.Propagators == nil {
		cfg.Propagators = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}

	cfg.RetryPolicy = cfg.RetryPolicy.sanitized()

	return cfg
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// Option configures the HTTP client.
type Option func(*internalConfig)

// WithBaseURL sets the base URL prepended to request paths.
//
// Example:
//
//	client := courier.New(courier.WithBaseURL("https://api.example.com"))
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithTimeout sets the default timeout budget for each logical request.
// The budget is cumulative across all attempts of the request, including
// backoff waits. Zero disables the timeout.
//
// Default: 15s
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.Timeout = d
	}
}

// WithDefaultHeader adds a header applied to every request. Per-request
// headers with the same name take precedence.
func WithDefaultHeader(key, value string) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultHeaders.Add(key, value)
	}
}

// WithDefaultHeaders adds multiple headers applied to every request.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		for k, v := range headers {
			cfg.DefaultHeaders.Set(k, v)
		}
	}
}

// WithTransport sets the transport primitive executing each physical
// attempt. Use this to supply a custom-tuned http.Transport or any
// other RoundTripper; the default is http.DefaultTransport.
//
// Example:
//
//	transport := &http.Transport{MaxIdleConnsPerHost: 50}
//	client := courier.New(courier.WithTransport(transport))
func WithTransport(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.BaseTransport = rt
	}
}

// WithRetryPolicy sets the client-wide retry policy. Without this
// option retries are disabled and each logical request makes exactly
// one attempt.
//
// Example:
//
//	client := courier.New(
//	    courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
//	)
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cfg *internalConfig) {
		cfg.RetryPolicy = p
	}
}

// WithRetryBackOff replaces the policy's exponential backoff computation
// with a custom strategy. The factory is invoked once per logical
// request so concurrent requests never share backoff state.
//
// Example:
//
//	client := courier.New(
//	    courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
//	    courier.WithRetryBackOff(func() backoff.BackOff {
//	        return courier.NewLinearBackOff()
//	    }),
//	)
func WithRetryBackOff(factory func() backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.RetryBackOff = factory
	}
}

// WithRateLimit enables client-level rate limiting on physical attempts.
func WithRateLimit(rl RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimitConfig = &rl
	}
}

// WithCircuitBreaker enables the circuit breaker. The breaker wraps the
// whole retry loop, so one logical request counts once toward tripping.
func WithCircuitBreaker(bc BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &bc
	}
}

// WithCoalescing enables deduplication of identical in-flight GET and
// HEAD requests: concurrent duplicates share a single round trip and
// each receives an independent copy of the response.
func WithCoalescing() Option {
	return func(cfg *internalConfig) {
		cfg.CoalesceRequests = true
	}
}

// WithRequestHook adds a hook run before every attempt. Hooks run in
// the order added; a hook error aborts the attempt sequence.
func WithRequestHook(h RequestHook) Option {
	return func(cfg *internalConfig) {
		cfg.Hooks.request = append(cfg.Hooks.request, h)
	}
}

// WithResponseHook adds a hook run after every attempt that produced a
// response. Hooks run in the order added; a hook error aborts the
// attempt sequence.
func WithResponseHook(h ResponseHook) Option {
	return func(cfg *internalConfig) {
		cfg.Hooks.response = append(cfg.Hooks.response, h)
	}
}

// WithServiceName sets an identifier for this client in traces and
// metrics, added as the "http.client.name" attribute.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets custom context propagators for trace context
// injection. Default: W3C TraceContext + Baggage.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithDebug enables request/response debug logging.
func WithDebug() Option {
	return func(cfg *internalConfig) {
		cfg.Debug = true
	}
}

// WithMockTransport replaces the base transport with a mock.
// Test use only.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
