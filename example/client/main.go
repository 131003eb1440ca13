// Command client demonstrates courier against a local test server:
// retrying through transient failures, honoring Retry-After hints, and
// decoding JSON responses, with spans exported to stdout.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	courier "github.com/lumen-labs/courier-go/courier"
)

type statusReply struct {
	Healthy bool   `json:"healthy"`
	Region  string `json:"region"`
}

func main() {
	ctx := context.Background()

	// Trace exporter to stdout so the retry events are visible.
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Fatalf("failed to create trace exporter: %v", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(ctx)

	// A flaky server: two 503s with a Retry-After hint, then success.
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"healthy":true,"region":"eu-west-1"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := courier.New(
		courier.WithBaseURL(server.URL),
		courier.WithServiceName("status-checker"),
		courier.WithTimeout(10*time.Second),
		courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
		courier.WithRequestHook(courier.CorrelationIDHook("X-Request-ID", nil)),
	)

	var status statusReply
	resp, err := client.Request("GetStatus").
		Path("/status").
		Decode(&status).
		Get(ctx)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}

	fmt.Printf("status=%d healthy=%v region=%s after %d server calls\n",
		resp.StatusCode, status.Healthy, status.Region, calls.Load())

	// A non-2xx response is a valid outcome; Err() converts it when
	// error semantics are wanted.
	missing, err := client.Request("GetMissing").Get(ctx, "/missing")
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	if err := missing.Err(); err != nil {
		fmt.Printf("expected error outcome: %v\n", err)
	}
}
