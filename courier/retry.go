package courier

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy holds the resolved retry behavior for a logical request.
// Use DefaultRetryPolicy() for balanced defaults, then modify as needed.
//
// The retry mechanism uses exponential backoff with jitter to prevent
// "thundering herd" problems when multiple clients retry simultaneously.
//
// Key concepts:
//   - MaxRetries: Maximum number of retry attempts (0 = disabled).
//     Total attempts for one logical request = MaxRetries + 1.
//   - RetryableStatusCodes: Responses with these status codes are
//     retried; any other completed response is terminal, 2xx or not.
//   - RetryableMethods: The gate is evaluated once per logical request
//     against the resolved HTTP method (case-insensitive). A method
//     outside the set gets exactly one attempt regardless of status.
//   - JitterFraction: Randomization (0.0-1.0) applied to each delay.
//     0.5 means delays vary ±50% (e.g., 1s becomes 0.5s-1.5s).
//
// Example usage:
//
//	// Use defaults
//	client := courier.New(
//	    courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
//	)
//
//	// Custom configuration
//	p := courier.DefaultRetryPolicy()
//	p.MaxRetries = 5
//	p.MinDelay = 200 * time.Millisecond
//	client := courier.New(
//	    courier.WithRetryPolicy(p),
//	)
type RetryPolicy struct {
	// MaxRetries is the maximum number of retry attempts.
	// Set to 0 to disable retries entirely.
	// The initial request is not counted as a retry.
	// Default: 3
	MaxRetries int

	// RetryableStatusCodes is the set of HTTP status codes eligible
	// for retry. A completed response outside this set is terminal.
	// Default: 429, 502, 503, 504
	RetryableStatusCodes []int

	// RetryableMethods is the set of HTTP methods eligible for retry.
	// If the request method is not a member, the policy is treated as
	// absent for that request and a single attempt is made.
	// Default: GET, HEAD, PUT, DELETE, OPTIONS
	RetryableMethods []string

	// BackoffFactor controls exponential growth of backoff delays.
	// Delay before retry k (1-indexed) = MinDelay × BackoffFactor^(k−1),
	// capped at MaxDelay. Values below 1 are treated as 1.
	// Default: 2.0
	BackoffFactor float64

	// MinDelay is the base backoff delay before the first retry.
	// Default: 500ms
	MinDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	// Default: 30s
	MaxDelay time.Duration

	// JitterFraction adds randomization to prevent retry storms.
	// Value between 0.0 (no jitter) and 1.0 (±100% randomization).
	// With jitter the delay is drawn uniformly from
	// [raw×(1−j), raw×(1+j)] and floored to whole milliseconds.
	// Default: 0.5
	JitterFraction float64

	// HonorRetryAfter makes a server-provided Retry-After header
	// override the computed backoff delay for that wait. The header is
	// accepted as either delay-seconds or an HTTP date; an unparseable
	// value falls back to the computed backoff.
	// Default: true
	HonorRetryAfter bool
}

// Default values for RetryPolicy.
const (
	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 3

	// DefaultMinDelay is the default base backoff delay.
	DefaultMinDelay = 500 * time.Millisecond

	// DefaultMaxDelay is the default maximum backoff delay.
	DefaultMaxDelay = 30 * time.Second

	// DefaultBackoffFactor is the default backoff growth rate.
	DefaultBackoffFactor = 2.0

	// DefaultJitterFraction is the default randomization fraction.
	// 0.5 means ±50% randomization, which is recommended for most use cases.
	DefaultJitterFraction = 0.5
)

// DefaultRetryableStatusCodes are the status codes retried by default:
// rate limiting and transient gateway failures. 500 is deliberately
// absent (a server bug is unlikely to resolve on retry) as are all 4xx.
func DefaultRetryableStatusCodes() []int {
	return []int{
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
}

// DefaultRetryableMethods are the idempotent HTTP methods retried by
// default. POST and PATCH are excluded because replaying them can
// duplicate side effects.
func DefaultRetryableMethods() []string {
	return []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
}

// DefaultRetryPolicy returns balanced defaults for general use.
//
// Configuration:
//   - 3 retries with exponential backoff (500ms → 1s → 2s)
//   - 429/502/503/504 retried, idempotent methods only
//   - 50% jitter for storm prevention, 30s delay cap
//   - Retry-After hints honored
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           DefaultMaxRetries,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
		RetryableMethods:     DefaultRetryableMethods(),
		BackoffFactor:        DefaultBackoffFactor,
		MinDelay:             DefaultMinDelay,
		MaxDelay:             DefaultMaxDelay,
		JitterFraction:       DefaultJitterFraction,
		HonorRetryAfter:      true,
	}
}

// AggressiveRetryPolicy returns a policy for mission-critical idempotent
// operations: more attempts, faster start.
//
// Warning: more aggressive retries increase load on downstream services.
// Ensure the target service can handle the additional traffic.
func AggressiveRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           5,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
		RetryableMethods:     DefaultRetryableMethods(),
		BackoffFactor:        2.0,
		MinDelay:             200 * time.Millisecond,
		MaxDelay:             60 * time.Second,
		JitterFraction:       0.5,
		HonorRetryAfter:      true,
	}
}

// ConservativeRetryPolicy returns a policy for expensive or rate-limited
// services: fewer attempts with a slower start, failing fast rather than
// waiting.
func ConservativeRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:           2,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
		RetryableMethods:     DefaultRetryableMethods(),
		BackoffFactor:        2.0,
		MinDelay:             1 * time.Second,
		MaxDelay:             10 * time.Second,
		JitterFraction:       0.5,
		HonorRetryAfter:      true,
	}
}

// NoRetryPolicy returns a policy that disables retries entirely:
// exactly one attempt per logical request, whatever the outcome.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{}
}

// IsEnabled returns true if retries are enabled.
func (p RetryPolicy) IsEnabled() bool {
	return p.MaxRetries > 0
}

// allowsMethod reports whether method is a member of RetryableMethods.
// The compare is case-insensitive.
func (p RetryPolicy) allowsMethod(method string) bool {
	for _, m := range p.RetryableMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// retryableStatus reports whether code is a member of RetryableStatusCodes.
func (p RetryPolicy) retryableStatus(code int) bool {
	for _, c := range p.RetryableStatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// sanitized returns a copy of the policy with out-of-range fields
// clamped so the backoff math stays well defined.
func (p RetryPolicy) sanitized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = 1
	}
	if p.MinDelay < 0 {
		p.MinDelay = 0
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.JitterFraction < 0 {
		p.JitterFraction = 0
	}
	if p.JitterFraction > 1 {
		p.JitterFraction = 1
	}
	return p
}

// retryMode tags the RetrySpec variants.
type retryMode int

const (
	retryModeInherit retryMode = iota
	retryModeDisabled
	retryModeCount
	retryModePolicy
)

// RetrySpec is a per-request retry shorthand. It is resolved against the
// client's configured policy exactly once, before the attempt loop runs,
// so the orchestrator only ever sees one canonical RetryPolicy.
//
// Example:
//
//	// Bump the retry count for this call only
//	resp, err := client.Request("GetStatus").
//	    Retry(courier.RetryCount(5)).
//	    Get(ctx, "/status")
//
//	// Disable retries for a non-idempotent call
//	resp, err := client.Request("Charge").
//	    Retry(courier.RetryDisabled()).
//	    Post(ctx, "/charges")
type RetrySpec struct {
	mode   retryMode
	count  int
	policy RetryPolicy
}

// RetryDisabled returns a spec that disables retries for the request.
func RetryDisabled() RetrySpec {
	return RetrySpec{mode: retryModeDisabled}
}

// RetryDefaults returns a spec that enables DefaultRetryPolicy for the
// request, regardless of the client's configured policy.
func RetryDefaults() RetrySpec {
	return RetrySpec{mode: retryModePolicy, policy: DefaultRetryPolicy()}
}

// RetryCount returns a spec that keeps the client's configured policy
// but overrides the number of retries. If the client has no policy,
// the default policy is used as the base.
func RetryCount(n int) RetrySpec {
	return RetrySpec{mode: retryModeCount, count: n}
}

// RetryWith returns a spec that replaces the client's policy with p for
// the request.
func RetryWith(p RetryPolicy) RetrySpec {
	return RetrySpec{mode: retryModePolicy, policy: p}
}

// resolve produces the canonical policy for one logical request.
func (s RetrySpec) resolve(base RetryPolicy) RetryPolicy {
	switch s.mode {
	case retryModeDisabled:
		return NoRetryPolicy()
	case retryModeCount:
		p := base
		if !p.IsEnabled() {
			p = DefaultRetryPolicy()
		}
		p.MaxRetries = s.count
		return p.sanitized()
	case retryModePolicy:
		return s.policy.sanitized()
	default:
		return base
	}
}

// retryPolicyKey carries a per-request policy override through the
// transport chain to the retry orchestrator.
type retryPolicyKey struct{}

// contextWithPolicy attaches a resolved per-request policy override.
func contextWithPolicy(ctx context.Context, p RetryPolicy) context.Context {
	return context.WithValue(ctx, retryPolicyKey{}, p)
}

// policyFromContext retrieves a per-request policy override, if any.
func policyFromContext(ctx context.Context) (RetryPolicy, bool) {
	p, ok := ctx.Value(retryPolicyKey{}).(RetryPolicy)
	return p, ok
}

// parseRetryAfter extracts a server retry hint from the Retry-After
// header. The header is accepted as delay-seconds or an HTTP date; a
// date in the past yields a zero delay. The second return value is
// false when the header is absent or unparseable, in which case the
// caller falls back to computed backoff.
func parseRetryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	h := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if h == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(h, 10, 64); err == nil {
		if secs < 0 {
			return 0, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(h); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
