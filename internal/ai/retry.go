package ai

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryConfig bounds the retry loop applied to every external provider call.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 10 * time.Second
	}
	return c
}

// transientPatterns groups error substrings that mark a failure as retryable,
// matched case-insensitively. Provider SDKs do not expose typed errors for
// throttling and transient upstream failures, so string matching is the only
// classification available.
var transientPatterns = [][]string{
	{"rate limit", "quota exceeded", "429", "resource exhausted"},
	{"500", "502", "503", "504", "unavailable", "overloaded"},
	{"connection reset", "timeout", "deadline exceeded", "temporary", "eof"},
}

func transientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range transientPatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// doWithRetry runs fn with exponential backoff on transient errors, rate
// limiting each attempt. Non-transient errors fail immediately; context
// cancellation always wins over the backoff sleep.
func doWithRetry(ctx context.Context, limiter *rate.Limiter, cfg RetryConfig, fn func() error) error {
	cfg = cfg.normalized()
	delay := cfg.InitialInterval
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !transientError(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		logutil.GetLogger(ctx).Warn("transient provider error, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > cfg.MaxInterval {
			delay = cfg.MaxInterval
		}
	}
	return lastErr
}
