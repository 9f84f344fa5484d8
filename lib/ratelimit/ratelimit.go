package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

var ErrInvalidRate = errors.New("ratelimit: max per second must be positive")

// Limiter enforces a minimum interval of 1/maxPerSecond between
// successive acquisitions. It has no burst allowance.
type Limiter struct {
	maxPerSecond float64
	inner        *rate.Limiter
}

func New(maxPerSecond float64) (*Limiter, error) {
	if maxPerSecond <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRate, maxPerSecond)
	}
	return &Limiter{
		maxPerSecond: maxPerSecond,
		// a burst of 1 means the bucket never holds more than the next call
		inner: rate.NewLimiter(rate.Limit(maxPerSecond), 1),
	}, nil
}

func (l *Limiter) MaxPerSecond() float64 {
	return l.maxPerSecond
}

// Acquire blocks until the caller may proceed or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.inner.Wait(ctx)
}
