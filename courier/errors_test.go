package courier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "given nil, then empty classification",
			err:  nil,
			want: "",
		},
		{
			name: "given context.Canceled, then cancelled",
			err:  context.Canceled,
			want: ErrorTypeCancelled,
		},
		{
			name: "given a wrapped cancellation, then cancelled",
			err:  fmt.Errorf("round trip: %w", context.Canceled),
			want: ErrorTypeCancelled,
		},
		{
			name: "given the request timeout sentinel, then timeout",
			err:  ErrRequestTimeout,
			want: ErrorTypeTimeout,
		},
		{
			name: "given context.DeadlineExceeded, then timeout",
			err:  context.DeadlineExceeded,
			want: ErrorTypeTimeout,
		},
		{
			name: "given the rate limit sentinel, then rate_limited",
			err:  fmt.Errorf("call blocked: %w", ErrRateLimited),
			want: ErrorTypeRateLimited,
		},
		{
			name: "given a DNS error, then dns_error",
			err:  &net.DNSError{Err: "no such host", Name: "api.example.com"},
			want: ErrorTypeDNSError,
		},
		{
			name: "given ECONNREFUSED, then connection_refused",
			err:  fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED),
			want: ErrorTypeConnectionRefused,
		},
		{
			name: "given ECONNRESET, then connection_reset",
			err:  fmt.Errorf("read tcp: %w", syscall.ECONNRESET),
			want: ErrorTypeConnectionReset,
		},
		{
			name: "given io.EOF, then eof",
			err:  io.EOF,
			want: ErrorTypeEOF,
		},
		{
			name: "given an opaque timeout message, then string fallback matches timeout",
			err:  errors.New("operation timeout while reading headers"),
			want: ErrorTypeTimeout,
		},
		{
			name: "given an opaque refused message, then string fallback matches",
			err:  errors.New("proxyconnect: connection refused by gateway"),
			want: ErrorTypeConnectionRefused,
		},
		{
			name: "given an opaque tls message, then string fallback matches",
			err:  errors.New("remote error: tls handshake failure"),
			want: ErrorTypeTLSError,
		},
		{
			name: "given an x509 message, then tls_error",
			err:  errors.New("x509: certificate signed by unknown authority"),
			want: ErrorTypeTLSError,
		},
		{
			name: "given a no-such-host message, then dns_error",
			err:  errors.New("lookup api.example.com: no such host"),
			want: ErrorTypeDNSError,
		},
		{
			name: "given an unrecognized error, then unknown",
			err:  errors.New("something odd happened"),
			want: ErrorTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestErrorTypeFromStatusCode(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		want       string
	}{
		{"given 200, then no error type", http.StatusOK, ""},
		{"given 399, then no error type", 399, ""},
		{"given 404, then the code itself", http.StatusNotFound, "404"},
		{"given 500, then the code itself", http.StatusInternalServerError, "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorTypeFromStatusCode(tt.statusCode))
		})
	}
}

func TestHTTPError(t *testing.T) {
	t.Run("given a terminal response, then the message names method, URL and status", func(t *testing.T) {
		err := &HTTPError{
			StatusCode: http.StatusBadGateway,
			Status:     "502 Bad Gateway",
			Method:     http.MethodPost,
			URL:        "https://api.example.com/orders",
			Body:       []byte("upstream unavailable"),
		}

		assert.Equal(t,
			"courier: POST https://api.example.com/orders returned 502 Bad Gateway",
			err.Error())
	})

	t.Run("given errors.As on a wrapped HTTPError, then the typed value is recovered", func(t *testing.T) {
		inner := &HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}
		wrapped := fmt.Errorf("fetch quota: %w", inner)

		var httpErr *HTTPError
		assert.ErrorAs(t, wrapped, &httpErr)
		assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	})
}
