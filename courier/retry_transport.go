package courier

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// retryTransport wraps an http.RoundTripper with the retry orchestration
// loop. It issues sequential attempts against the base transport,
// classifying each outcome against the resolved RetryPolicy and waiting
// a cancellable backoff delay between attempts.
//
// The composed cancellation context attached to the incoming request
// spans the entire attempt sequence: the timeout budget is never reset
// per attempt, and a fired signal is observed before the next attempt
// starts even when the previous attempt raced to natural completion.
type retryTransport struct {
	base http.RoundTripper
	cfg  *internalConfig
}

// newRetryTransport creates the retry orchestration wrapper. The wrapper
// is installed even when the client's default policy is disabled so that
// per-request overrides can still enable retries.
func newRetryTransport(base http.RoundTripper, cfg *internalConfig) http.RoundTripper {
	return &retryTransport{base: base, cfg: cfg}
}

// RoundTrip implements http.RoundTripper with sequential retries.
func (t *retryTransport) RoundTrip(req *http.Request) (resp *http.Response, err error) {
	ctx := req.Context()

	policy := t.cfg.RetryPolicy
	if override, ok := policyFromContext(ctx); ok {
		policy = override
	}

	// Method gating is evaluated once per logical request: a method
	// outside the policy's set gets a single attempt regardless of
	// status-code eligibility.
	enabled := policy.IsEnabled() && policy.allowsMethod(req.Method)

	totalAttempts := 1
	if enabled {
		totalAttempts = policy.MaxRetries + 1
	}

	// Capture the request body so later attempts can replay it.
	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	var strategy backoff.BackOff
	if t.cfg.RetryBackOff != nil {
		strategy = t.cfg.RetryBackOff()
		strategy.Reset()
	}

	span := trace.SpanFromContext(ctx)
	start := time.Now()
	retries := 0

	defer func() {
		if retries > 0 {
			span.SetAttributes(
				attribute.Int("http.retry_count", retries),
				attribute.Bool("http.retry_success", err == nil),
			)
			exhausted := err != nil ||
				(resp != nil && policy.retryableStatus(resp.StatusCode))
			if exhausted {
				t.cfg.Metrics.recordRetryExhausted(ctx, t.cfg.baseAttributes())
			}
			t.cfg.Metrics.recordRetryDuration(ctx, t.cfg.baseAttributes(), time.Since(start))
		}
	}()

	for attempt := 1; attempt <= totalAttempts; attempt++ {
		// A signal that fired while the previous attempt completed
		// naturally must still stop the sequence here.
		if ctx.Err() != nil {
			return nil, cancellationError(ctx, err)
		}

		attemptReq := t.cloneRequest(req, bodyBytes)

		// Hook failures propagate as if the attempt itself failed and
		// are never retried.
		if hookErr := t.cfg.Hooks.applyRequestHooks(attemptReq); hookErr != nil {
			return nil, hookErr
		}

		resp, err = t.base.RoundTrip(attemptReq)

		if err == nil {
			if hookErr := t.cfg.Hooks.applyResponseHooks(resp, attemptReq); hookErr != nil {
				drainBody(resp)
				return nil, hookErr
			}
		}

		var delay time.Duration
		switch {
		case err != nil:
			// Cancellation is never retried, even with attempts left.
			if isCancellation(ctx, err) {
				return nil, cancellationError(ctx, err)
			}
			if !enabled || attempt == totalAttempts {
				return resp, err
			}
			delay = t.nextDelay(policy, strategy, attempt, nil)

		default:
			if !enabled || attempt == totalAttempts || !policy.retryableStatus(resp.StatusCode) {
				// Terminal response, 2xx or not. Translating a non-2xx
				// response into a typed error is the caller's concern.
				return resp, nil
			}
			delay = t.nextDelay(policy, strategy, attempt, resp)
		}

		// A custom strategy can stop the sequence early; the last
		// outcome is terminal in that case.
		if delay == backoff.Stop {
			return resp, err
		}
		if t.cfg.Debug {
			logRetry(debugLogger, req, attempt, delay, retryReason(resp, err))
		}
		if resp != nil {
			drainBody(resp)
			resp = nil
		}

		retries++
		t.recordRetryEvent(span, retries, err, delay)
		t.cfg.Metrics.recordRetryAttempt(ctx, t.cfg.baseAttributes(), retries)

		if waitErr := waitRetry(ctx, delay); waitErr != nil {
			return nil, waitErr
		}
	}

	// The loop accounting above always returns; this propagates the
	// last observed outcome if it ever falls through.
	return resp, err
}

// nextDelay computes the wait before the next attempt. A parseable
// Retry-After hint wins over the computed backoff when the policy honors
// hints; otherwise the custom strategy (if any) or the policy's
// exponential backoff applies.
func (t *retryTransport) nextDelay(
	policy RetryPolicy,
	strategy backoff.BackOff,
	attempt int,
	resp *http.Response,
) time.Duration {
	if policy.HonorRetryAfter {
		if hint, ok := parseRetryAfter(resp); ok {
			return hint
		}
	}
	if strategy != nil {
		return strategy.NextBackOff()
	}
	return policy.backoffDelay(attempt)
}

// cloneRequest creates a copy of the request with a fresh body.
func (t *retryTransport) cloneRequest(req *http.Request, bodyBytes []byte) *http.Request {
	clone := req.Clone(req.Context())

	if bodyBytes != nil {
		clone.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		clone.ContentLength = int64(len(bodyBytes))
	} else if req.GetBody != nil {
		var err error
		clone.Body, err = req.GetBody()
		if err != nil {
			clone.Body = req.Body
		}
	}

	return clone
}

// recordRetryEvent adds a span event for the retry attempt.
func (t *retryTransport) recordRetryEvent(
	span trace.Span,
	retry int,
	err error,
	delay time.Duration,
) {
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("retry.attempt", retry),
		attribute.Int64("retry.delay_ms", delay.Milliseconds()),
	}

	if err != nil {
		reason := err.Error()
		if len(reason) > 50 {
			reason = reason[:50] + "..."
		}
		attrs = append(attrs, attribute.String("retry.reason", reason))

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.AddEvent("http.retry", trace.WithAttributes(attrs...))
}

// drainBody consumes and closes a response body before a retry so the
// underlying connection can be reused.
func drainBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
