package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoValSucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), RetryConfig{Backoff: time.Millisecond}, "op", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDoValRetriesTransientOnce(t *testing.T) {
	calls := 0
	v, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond}, "op", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(eris.New("overloaded"), 529)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestDoValDoesNotRetryStructuralFailure(t *testing.T) {
	calls := 0
	_, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond}, "op", func(ctx context.Context) (int, error) {
		calls++
		return 0, eris.New("unparseable input")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := DoVal(ctx, RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond}, "op", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, NewTransientError(eris.New("timeout"), 504)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("schema mismatch")))
	assert.True(t, IsTransient(NewTransientError(eris.New("503"), 503)))
	assert.True(t, IsTransient(eris.Wrap(NewTransientError(eris.New("529"), 529), "tier1")))
	assert.True(t, IsTransient(eris.New("read tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
