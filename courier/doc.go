// Package courier provides a configurable HTTP request client with
// retry orchestration, timeout/cancellation composition, typed error
// surfacing, and OpenTelemetry instrumentation.
//
// # Quick Start
//
// Basic usage with the fluent request builder:
//
//	client := courier.New(
//	    courier.WithBaseURL("https://api.example.com"),
//	    courier.WithServiceName("my-service"),
//	)
//
//	// Simple GET request
//	resp, err := client.Request("GetUsers").Get(ctx, "/users")
//
//	// POST with JSON body and response decoding
//	var user User
//	resp, err := client.Request("CreateUser").
//	    Body(newUser).
//	    Decode(&user).
//	    Post(ctx, "/users")
//
// For raw http.Client access (advanced usage):
//
//	httpClient := client.HTTP()
//	resp, err := httpClient.Do(req)
//
// # Retry Orchestration
//
// A resolved RetryPolicy drives a sequential attempt loop around the
// underlying transport. Transport failures and retryable status codes
// are retried with exponential backoff and jitter; cancellation is
// never retried; a server-provided Retry-After hint overrides the
// computed backoff when enabled.
//
//	// Default: 3 retries, 500ms min delay, 2x factor, 50% jitter
//	client := courier.New(
//	    courier.WithRetryPolicy(courier.DefaultRetryPolicy()),
//	)
//
//	// Per-request override
//	resp, err := client.Request("GetStatus").
//	    Retry(courier.RetryCount(5)).
//	    Get(ctx, "/status")
//
// # Timeout and Cancellation
//
// The caller's context and the configured timeout are composed into a
// single cancellation signal that governs the entire attempt sequence.
// The timeout budget is cumulative across attempts: a 5-second timeout
// with 3 retries yields 5 seconds total, not 20.
//
//	resp, err := client.Request("SlowCall").
//	    Timeout(2 * time.Second).
//	    Get(ctx, "/slow")
//
//	if courier.IsTimeout(err) {
//	    // the timeout budget expired
//	}
//
// # Resilience Extras
//
// Circuit breaking (local or Redis-distributed), client-level rate
// limiting, and in-flight request coalescing are available as opt-in
// transport wrappers:
//
//	client := courier.New(
//	    courier.WithCircuitBreaker(courier.DefaultBreakerConfig()),
//	    courier.WithRateLimit(courier.DefaultRateLimitConfig()),
//	    courier.WithCoalescing(),
//	)
//
// # Error Semantics
//
// A non-2xx response is not an error: it is returned as a valid
// *Response after exactly the configured number of attempts. Callers
// who want throwing semantics use Response.Err, which translates the
// terminal response into a typed *HTTPError carrying the status and
// body.
package courier
