// Package fetcher gates calls to an external source behind a request-rate
// limit and a concurrency bound, and wraps them with retry and a circuit
// breaker.
package fetcher

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds one source to a number of simultaneous requests and a
// minimum spacing of 1/requestsPerSecond between request starts. The spacing
// is shared by every holder of the Limiter.
type Limiter struct {
	slots         *semaphore.Weighted
	gate          *rate.Limiter
	maxConcurrent int
}

// NewLimiter creates a Limiter. A non-positive requestsPerSecond disables the
// rate gate; a non-positive maxConcurrent is treated as 1.
func NewLimiter(requestsPerSecond float64, maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Limiter{
		slots:         semaphore.NewWeighted(int64(maxConcurrent)),
		gate:          rate.NewLimiter(limit, 1),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire blocks until a concurrency slot is free and the rate gate admits a
// request start. The returned release func frees the slot and is safe to call
// more than once. On cancellation no slot is held.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.slots.Acquire(ctx, 1); err != nil {
		return nil, eris.Wrap(err, "limiter: wait for slot")
	}
	if err := l.gate.Wait(ctx); err != nil {
		l.slots.Release(1)
		return nil, eris.Wrap(err, "limiter: wait for rate gate")
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.slots.Release(1) })
	}, nil
}

// MaxConcurrent returns the concurrency bound.
func (l *Limiter) MaxConcurrent() int {
	return l.maxConcurrent
}
