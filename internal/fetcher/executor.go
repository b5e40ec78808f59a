package fetcher

import (
	"context"

	"github.com/sells-group/moviesync/internal/resilience"
)

// ExecutorConfig configures an Executor for one source.
type ExecutorConfig struct {
	Name              string
	RequestsPerSecond float64
	MaxConcurrent     int
	Retry             resilience.RetryConfig
	Circuit           resilience.CircuitBreakerConfig
}

// Executor runs requests against one source. Each attempt holds a limiter
// slot only while the request is in flight; backoff sleeps hold nothing.
type Executor struct {
	name    string
	limiter *Limiter
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
}

// NewExecutor creates an Executor. Retry and breaker hooks log under the
// source name when the config leaves them unset.
func NewExecutor(cfg ExecutorConfig) *Executor {
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = resilience.DefaultRetryConfig()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(cfg.Name, "request")
	}

	circuit := cfg.Circuit
	if circuit.OnStateChange == nil {
		circuit.OnStateChange = resilience.BreakerLogger(cfg.Name)
	}

	return &Executor{
		name:    cfg.Name,
		limiter: NewLimiter(cfg.RequestsPerSecond, cfg.MaxConcurrent),
		retry:   retry,
		breaker: resilience.NewCircuitBreaker(circuit),
	}
}

// Name returns the source name.
func (e *Executor) Name() string { return e.name }

// MaxConcurrent returns the limiter's concurrency bound. Callers fanning out
// work over this source size their worker pools with it.
func (e *Executor) MaxConcurrent() int { return e.limiter.MaxConcurrent() }

// Limiter returns the executor's limiter for scoped use.
func (e *Executor) Limiter() *Limiter { return e.limiter }

// BreakerState reports the circuit state of the source.
func (e *Executor) BreakerState() resilience.CircuitState { return e.breaker.State() }

// Execute performs op through the executor: the breaker sees one outcome per
// call, the retry loop re-runs op on retryable failures, and every attempt
// passes the limiter.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (T, error) {
			var zero T
			release, err := e.limiter.Acquire(ctx)
			if err != nil {
				return zero, err
			}
			defer release()
			return op(ctx)
		})
	})
}
