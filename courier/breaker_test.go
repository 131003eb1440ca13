package courier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBreakerClassifier(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		err  error
		want bool
	}{
		{name: "5xx counts", resp: &http.Response{StatusCode: 500}, want: true},
		{name: "503 counts", resp: &http.Response{StatusCode: 503}, want: true},
		{name: "429 excluded", resp: &http.Response{StatusCode: 429}, want: false},
		{name: "2xx clean", resp: &http.Response{StatusCode: 200}, want: false},
		{name: "4xx clean", resp: &http.Response{StatusCode: 404}, want: false},
		{name: "network error counts", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: true},
		{name: "connection reset counts", err: syscall.ECONNRESET, want: true},
		{name: "plain error clean", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultBreakerClassifier(tt.resp, tt.err))
		})
	}
}

func TestCircuitBreakerTransport(t *testing.T) {
	newBreakerChain := func(mock *MockTransport, bc BreakerConfig) http.RoundTripper {
		cfg := newConfig(WithCircuitBreaker(bc))
		return newCircuitBreakerTransport(mock, cfg)
	}

	t.Run("given no breaker config, then transport passes through", func(t *testing.T) {
		mock := NewMockTransport()
		cfg := newConfig()
		rt := newCircuitBreakerTransport(mock, cfg)
		assert.Same(t, http.RoundTripper(mock), rt)
	})

	t.Run("given healthy responses, then breaker stays closed", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusOK, "OK")

		rt := newBreakerChain(mock, DefaultBreakerConfig())

		for i := 0; i < 10; i++ {
			resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}
	})

	t.Run("given consecutive failures, then breaker opens and rejects", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusInternalServerError, "boom")

		bc := DefaultBreakerConfig()
		bc.ConsecutiveFailures = 2
		bc.Timeout = 1 * time.Minute

		rt := newBreakerChain(mock, bc)

		// Failures still return the response to the caller.
		for i := 0; i < 2; i++ {
			resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		}

		// Third request is rejected without touching the transport.
		before := mock.RequestCount()
		_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))

		require.Error(t, err)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, before, mock.RequestCount())
	})

	t.Run("given transport errors, then breaker opens on them too", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubError(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})

		bc := DefaultBreakerConfig()
		bc.ConsecutiveFailures = 2
		bc.Timeout = 1 * time.Minute

		rt := newBreakerChain(mock, bc)

		for i := 0; i < 2; i++ {
			_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
			require.Error(t, err)
		}

		_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})

	t.Run("given state change callback, then transitions are reported", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusInternalServerError, "boom")

		var transitions []gobreaker.State
		bc := DefaultBreakerConfig()
		bc.ConsecutiveFailures = 1
		bc.OnStateChange = func(name string, from, to gobreaker.State) {
			transitions = append(transitions, to)
		}

		rt := newBreakerChain(mock, bc)
		rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
		rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))

		assert.Contains(t, transitions, gobreaker.StateOpen)
	})

	t.Run("given custom classifier, then it decides what counts", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusInternalServerError, "boom")

		bc := DefaultBreakerConfig()
		bc.ConsecutiveFailures = 1
		bc.Classifier = func(resp *http.Response, err error) bool { return false }

		rt := newBreakerChain(mock, bc)

		for i := 0; i < 5; i++ {
			resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://example.com/", nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		}
	})
}

func TestRedisStore(t *testing.T) {
	t.Run("given miniredis, then distributed breaker serves requests", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })

		store := NewRedisStore(rdb)
		require.NotNil(t, store)

		mock := NewMockTransport()
		mock.StubResponse(http.StatusOK, "OK")

		client := New(
			WithMockTransport(mock),
			WithServiceName("redis-breaker-test"),
			WithCircuitBreaker(DistributedBreakerConfig(store)),
		)

		resp, err := client.Request("Ping").Get(context.Background(), "http://example.com/ping")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
