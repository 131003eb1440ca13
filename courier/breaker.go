package courier

import (
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis for
// distributed circuit breaking, using sony/gobreaker/v2/redis.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	store := courier.NewRedisStore(rdb)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is the interface used by the circuit breaker transport.
// It matches the gobreaker.CircuitBreaker signature.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerClassifier decides whether an outcome counts as a failure for
// the circuit breaker. The breaker wraps the whole retry loop, so the
// outcome it sees is the final one for the logical request.
type BreakerClassifier func(resp *http.Response, err error) bool

// BreakerConfig holds the configuration for the circuit breaker.
//
// Concepts:
//   - Closed: Normal state, requests allowed.
//   - Open: Failing state, requests rejected immediately.
//   - Half-Open: Probing state, limited requests allowed to test recovery.
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass
	// through while the breaker is half-open. If 0, one probe request
	// is allowed.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which
	// the breaker clears its internal counts. If 0, counts are never
	// cleared while closed.
	Interval time.Duration

	// Timeout is the period of the open state, after which the breaker
	// transitions to half-open.
	Timeout time.Duration

	// FailureThreshold is the minimum number of requests observed
	// before the failure ratio can trip the circuit.
	// Default: 20
	FailureThreshold uint32

	// FailureRatio is the failure ratio (0.0 - 1.0) that trips the
	// circuit once FailureThreshold is met.
	// Default: 0.5
	FailureRatio float64

	// ConsecutiveFailures trips the circuit after this many sequential
	// failures regardless of ratio. 0 disables the rule.
	ConsecutiveFailures uint32

	// Store is the shared data store for distributed circuit breaking.
	// If nil, the circuit breaker is local (in-memory).
	Store gobreaker.SharedDataStore

	// Classifier determines which outcomes count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked when the breaker state changes.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a safe default configuration for a local
// (in-memory) circuit breaker.
//
// Defaults:
//   - Interval: 10s
//   - Timeout: 10s (fail fast, recover fast)
//   - FailureThreshold: 20 requests minimum before ratio tripping
//   - FailureRatio: 0.5
//   - ConsecutiveFailures: 5
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns a configuration for a distributed
// circuit breaker backed by a shared store. When one service instance
// trips the breaker, all instances sharing the store stop sending
// requests to the failing service.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts 5xx responses and network errors as
// failures. 429s are excluded; backpressure belongs to the retry policy,
// not the breaker.
func DefaultBreakerClassifier(resp *http.Response, err error) bool {
	if err != nil {
		return isNetworkError(err)
	}

	if resp != nil && resp.StatusCode >= 500 {
		return true
	}

	return false
}

// isNetworkError checks for common network errors.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	return false
}
