package courier

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures client-level rate limiting. The limiter
// sits inside the retry orchestrator, so every physical attempt
// (including retries) consumes a token.
type RateLimitConfig struct {
	// RequestsPerSecond is the maximum sustained request rate.
	RequestsPerSecond float64

	// Burst is the maximum number of requests allowed in a burst.
	// This allows brief spikes above the rate limit.
	Burst int

	// WaitOnLimit determines behavior when the limit is hit.
	// If true, requests wait for a token (respecting context deadline).
	// If false, requests immediately return ErrRateLimited.
	WaitOnLimit bool
}

// DefaultRateLimitConfig returns a sensible default rate limit
// configuration: 100 requests per second with a burst of 10, waiting
// on the limit.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             10,
		WaitOnLimit:       true,
	}
}

// ErrRateLimited is returned when a request is rejected due to rate limiting.
var ErrRateLimited = errors.New("rate limit exceeded")

// rateLimitTransport implements http.RoundTripper with rate limiting.
type rateLimitTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
	wait    bool
}

// newRateLimitTransport creates a rate-limited transport wrapper, or
// returns next unchanged when no rate limit is configured.
func newRateLimitTransport(next http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	if cfg.RateLimitConfig == nil || cfg.RateLimitConfig.RequestsPerSecond <= 0 {
		return next
	}

	burst := cfg.RateLimitConfig.Burst
	if burst <= 0 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitConfig.RequestsPerSecond), burst)

	return &rateLimitTransport{
		next:    next,
		limiter: limiter,
		wait:    cfg.RateLimitConfig.WaitOnLimit,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if t.wait {
		// Wait for a token, respecting the composed deadline.
		if err := t.limiter.Wait(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, ErrRateLimited
		}
	} else {
		// Fail fast if no token available
		if !t.limiter.Allow() {
			return nil, ErrRateLimited
		}
	}

	return t.next.RoundTrip(req)
}

// RateLimiterStats provides visibility into rate limiter state.
type RateLimiterStats struct {
	// Limit is the maximum rate per second.
	Limit float64
	// Burst is the maximum burst size.
	Burst int
	// TokensAvailable is the current number of tokens.
	TokensAvailable float64
}

// GetStats returns stats for the transport's rate limiter.
func (t *rateLimitTransport) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Limit:           float64(t.limiter.Limit()),
		Burst:           t.limiter.Burst(),
		TokensAvailable: t.limiter.Tokens(),
	}
}
