package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", errors.New("429 Too Many Requests"), true},
		{"server error", errors.New("upstream returned 503"), true},
		{"timeout", errors.New("context deadline exceeded"), true},
		{"quota", errors.New("Quota Exceeded for project"), true},
		{"bad request", errors.New("400 invalid model name"), false},
		{"auth", errors.New("401 unauthorized key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, transientError(tt.err))
		})
	}
}

func TestDoWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), nil, fastRetry(3), func() error {
		calls++
		return errors.New("400 bad request")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoWithRetryExhaustsTransientErrors(t *testing.T) {
	calls := 0
	transient := errors.New("rate limit exceeded")
	err := doWithRetry(context.Background(), nil, fastRetry(3), func() error {
		calls++
		return transient
	})
	require.ErrorIs(t, err, transient)
	require.Equal(t, 3, calls)
}

func TestDoWithRetryRecoversAfterTransient(t *testing.T) {
	calls := 0
	err := doWithRetry(context.Background(), nil, fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := doWithRetry(ctx, nil, RetryConfig{MaxAttempts: 3, InitialInterval: time.Minute}, func() error {
		return errors.New("timeout contacting provider")
	})
	require.ErrorIs(t, err, context.Canceled)
}
