package courier

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRequestTimeout is the cancellation cause installed when the
// per-request timeout budget expires. Use IsTimeout to check for it,
// including through wrapping (*url.Error, transport errors).
var ErrRequestTimeout = errors.New("courier: request timeout exceeded")

// composeContext merges the caller-supplied context with an optional
// timeout budget into the single context that governs every attempt of
// one logical request.
//
// The returned release function owns the only timer created for the
// request and must be called on every exit path. It is idempotent and
// safe to call multiple times.
//
//   - No caller deadline and no timeout: the context is returned
//     unrestricted with a no-op release.
//   - Timeout only: a timer is armed; on expiry the context is
//     cancelled with ErrRequestTimeout as its cause.
//   - Caller context only: the composed context mirrors it.
//   - Both: whichever fires first wins; context.Cause preserves the
//     originating reason for diagnostics.
func composeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeoutCause(ctx, timeout, ErrRequestTimeout)
}

// IsTimeout reports whether err traces back to an expired timeout,
// either the client's own budget (ErrRequestTimeout) or a deadline on
// the caller's context.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// IsCanceled reports whether err traces back to an explicit caller
// abort rather than a timeout.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// isCancellation reports whether an attempt failure originated from the
// composed cancellation signal rather than the wire. The context state
// is checked in addition to the error chain: an attempt can race to a
// transport-level failure after the signal fired but before the
// cancellation propagated into the error it returned.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// cancellationError returns the error to propagate when an attempt was
// aborted by the composed signal, attaching the originating cause
// (timeout vs caller abort) when the transport error does not already
// carry it.
func cancellationError(ctx context.Context, err error) error {
	cause := context.Cause(ctx)
	switch {
	case err == nil:
		return cause
	case cause != nil && !errors.Is(err, cause):
		return fmt.Errorf("%w: %w", err, cause)
	default:
		return err
	}
}

// waitRetry blocks for the computed backoff delay, abandoning the wait
// as soon as the composed signal fires. An already-fired signal is
// observed even for a zero delay so that no extra attempt is issued
// after the deadline.
func waitRetry(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}
