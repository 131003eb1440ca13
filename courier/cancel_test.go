package courier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeContext(t *testing.T) {
	t.Run("given no timeout, then caller context passes through", func(t *testing.T) {
		ctx := context.Background()
		composed, release := composeContext(ctx, 0)
		defer release()

		_, hasDeadline := composed.Deadline()
		assert.False(t, hasDeadline)
	})

	t.Run("given nil context, then background is used", func(t *testing.T) {
		composed, release := composeContext(nil, 0) //nolint:staticcheck
		defer release()

		require.NotNil(t, composed)
		assert.NoError(t, composed.Err())
	})

	t.Run("given timeout, then expiry carries the timeout cause", func(t *testing.T) {
		composed, release := composeContext(context.Background(), 10*time.Millisecond)
		defer release()

		<-composed.Done()

		assert.ErrorIs(t, context.Cause(composed), ErrRequestTimeout)
		assert.True(t, IsTimeout(context.Cause(composed)))
	})

	t.Run("given caller abort before timeout, then cancel cause wins", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		composed, release := composeContext(parent, 1*time.Hour)
		defer release()

		cancel()
		<-composed.Done()

		assert.True(t, IsCanceled(context.Cause(composed)))
		assert.False(t, IsTimeout(context.Cause(composed)))
	})

	t.Run("given caller deadline tighter than timeout, then caller deadline wins", func(t *testing.T) {
		parent, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		composed, release := composeContext(parent, 1*time.Hour)
		defer release()

		<-composed.Done()

		assert.ErrorIs(t, context.Cause(composed), context.DeadlineExceeded)
		assert.True(t, IsTimeout(context.Cause(composed)))
	})

	t.Run("given release called repeatedly, then it stays safe", func(t *testing.T) {
		_, release := composeContext(context.Background(), 1*time.Second)

		release()
		release()
		release()
	})

	t.Run("given release, then the composed context is cancelled", func(t *testing.T) {
		composed, release := composeContext(context.Background(), 1*time.Hour)
		release()

		assert.Error(t, composed.Err())
	})
}

func TestIsTimeoutIsCanceled(t *testing.T) {
	wrapped := func(err error) error {
		return errors.Join(errors.New("round trip failed"), err)
	}

	assert.True(t, IsTimeout(ErrRequestTimeout))
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(wrapped(ErrRequestTimeout)))
	assert.False(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(errors.New("boom")))

	assert.True(t, IsCanceled(context.Canceled))
	assert.True(t, IsCanceled(wrapped(context.Canceled)))
	assert.False(t, IsCanceled(ErrRequestTimeout))
	assert.False(t, IsCanceled(nil))
}

func TestWaitRetry(t *testing.T) {
	t.Run("given zero delay and live context, then returns immediately", func(t *testing.T) {
		assert.NoError(t, waitRetry(context.Background(), 0))
	})

	t.Run("given zero delay and fired context, then signal is still observed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := waitRetry(ctx, 0)
		assert.True(t, IsCanceled(err))
	})

	t.Run("given delay elapses, then returns nil", func(t *testing.T) {
		start := time.Now()
		err := waitRetry(context.Background(), 20*time.Millisecond)

		assert.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("given cancellation mid-wait, then returns the cause promptly", func(t *testing.T) {
		ctx, release := composeContext(context.Background(), 30*time.Millisecond)
		defer release()

		start := time.Now()
		err := waitRetry(ctx, 5*time.Second)

		assert.True(t, IsTimeout(err))
		assert.Less(t, time.Since(start), 1*time.Second)
	})
}

func TestCancellationError(t *testing.T) {
	t.Run("given no attempt error, then the cause is returned", func(t *testing.T) {
		ctx, release := composeContext(context.Background(), 1*time.Millisecond)
		defer release()
		<-ctx.Done()

		err := cancellationError(ctx, nil)
		assert.ErrorIs(t, err, ErrRequestTimeout)
	})

	t.Run("given attempt error missing the cause, then cause is attached", func(t *testing.T) {
		ctx, release := composeContext(context.Background(), 1*time.Millisecond)
		defer release()
		<-ctx.Done()

		attemptErr := errors.New("read tcp: use of closed network connection")
		err := cancellationError(ctx, attemptErr)

		assert.ErrorIs(t, err, ErrRequestTimeout)
		assert.Contains(t, err.Error(), "closed network connection")
	})

	t.Run("given attempt error already carrying the cause, then it passes through", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := cancellationError(ctx, context.Canceled)
		assert.Same(t, context.Canceled, err)
	})
}
