package courier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCoalesceKey(t *testing.T) {
	t.Run("identical requests share a key", func(t *testing.T) {
		a := GenerateCoalesceKey("GET", "http://example.com/users?a=1&b=2")
		b := GenerateCoalesceKey("GET", "http://example.com/users?a=1&b=2")
		assert.Equal(t, a, b)
	})

	t.Run("query order does not matter", func(t *testing.T) {
		a := GenerateCoalesceKey("GET", "http://example.com/users?a=1&b=2")
		b := GenerateCoalesceKey("GET", "http://example.com/users?b=2&a=1")
		assert.Equal(t, a, b)
	})

	t.Run("method changes the key", func(t *testing.T) {
		a := GenerateCoalesceKey("GET", "http://example.com/users")
		b := GenerateCoalesceKey("HEAD", "http://example.com/users")
		assert.NotEqual(t, a, b)
	})

	t.Run("path changes the key", func(t *testing.T) {
		a := GenerateCoalesceKey("GET", "http://example.com/users")
		b := GenerateCoalesceKey("GET", "http://example.com/orders")
		assert.NotEqual(t, a, b)
	})
}

func TestCoalesceTransport(t *testing.T) {
	t.Run("given coalescing disabled, then transport passes through", func(t *testing.T) {
		mock := NewMockTransport()
		cfg := newConfig()
		rt := newCoalesceTransport(mock, cfg)
		assert.Same(t, http.RoundTripper(mock), rt)
	})

	t.Run("given concurrent identical GETs, then server is hit once", func(t *testing.T) {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.Write([]byte("shared"))
		}))
		defer server.Close()

		client := New(WithBaseURL(server.URL), WithCoalescing())

		const workers = 5
		var wg sync.WaitGroup
		bodies := make([]string, workers)
		errs := make([]error, workers)

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				resp, err := client.Request("GetShared").Get(context.Background(), "/shared")
				errs[i] = err
				if err == nil {
					bodies[i] = resp.String()
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, "shared", bodies[i], "each caller gets an independent body copy")
		}
		assert.Equal(t, int64(1), calls.Load())
	})

	t.Run("given different URLs, then requests are not coalesced", func(t *testing.T) {
		var calls atomic.Int64
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			fmt.Fprint(w, r.URL.Path)
		}))
		defer server.Close()

		client := New(WithBaseURL(server.URL), WithCoalescing())

		a, err := client.Request("GetA").Get(context.Background(), "/a")
		require.NoError(t, err)
		b, err := client.Request("GetB").Get(context.Background(), "/b")
		require.NoError(t, err)

		assert.Equal(t, "/a", a.String())
		assert.Equal(t, "/b", b.String())
		assert.Equal(t, int64(2), calls.Load())
	})

	t.Run("given POST requests, then they bypass coalescing", func(t *testing.T) {
		mock := NewMockTransport()
		mock.StubResponse(http.StatusOK, "OK")

		cfg := newConfig(WithCoalescing())
		rt := newCoalesceTransport(mock, cfg)

		req := httptest.NewRequest(http.MethodPost, "http://example.com/orders", nil)
		_, err := rt.RoundTrip(req)
		require.NoError(t, err)
		_, err = rt.RoundTrip(req)
		require.NoError(t, err)

		assert.Equal(t, 2, mock.RequestCount())
	})
}
