package ledger

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// RetryConfig bounds how often a batch is resubmitted after a transient
// store failure.
type RetryConfig struct {
	// MaxAttempts includes the first attempt. Default: 3
	MaxAttempts int
	// InitialBackoff is the wait before the first retry. Default: 100ms
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between retries. Default: 2s
	MaxBackoff time.Duration
	// BackoffFactor multiplies the wait after each retry. Default: 2.0
	BackoffFactor float64
	// JitterFactor adds up to this fraction of the wait at random. Default: 0.2
	JitterFactor float64
}

// DefaultRetryConfig returns the defaults above.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts < 1 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffFactor < 1.0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1 {
		c.JitterFactor = 0
	}
	return c
}

// IsTransient reports whether err should trigger a retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// wait sleeps for the current backoff and returns the next one.
func (c RetryConfig) wait(ctx context.Context, backoff time.Duration) (time.Duration, error) {
	d := backoff
	if c.JitterFactor > 0 {
		d += time.Duration(rand.Float64() * c.JitterFactor * float64(backoff))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return backoff, ctx.Err()
	case <-timer.C:
	}

	next := time.Duration(float64(backoff) * c.BackoffFactor)
	if next > c.MaxBackoff {
		next = c.MaxBackoff
	}
	return next, nil
}
