// Package resilience provides fault-tolerance patterns for backend calls:
// circuit breaker and bulkhead. Calls are never retried here; the only
// repeat a request ever gets is the API client's one-shot 401 refresh.
package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// Config holds resilience parameters.
type Config struct {
	MaxConcurrency int
	// FailureRatio trips the breaker once at least MinRequests were seen.
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
}

// DefaultConfig mirrors the values the breaker shipped with.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 50,
		FailureRatio:   0.6,
		MinRequests:    5,
		OpenTimeout:    10 * time.Second,
	}
}

// NewCircuitBreaker creates a circuit breaker. Only failures counted by
// isFailure trip it; business rejections (4xx) should not.
func NewCircuitBreaker(name string, cfg Config, isFailure func(error) bool) *gobreaker.CircuitBreaker {
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     cfg.OpenTimeout,  // open -> half-open
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if isFailure == nil {
				return false
			}
			return !isFailure(err)
		},
	})
}

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	sem chan struct{}
}

// NewBulkhead creates a bulkhead with the given max concurrency.
func NewBulkhead(maxConcurrency int) *Bulkhead {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Bulkhead{sem: make(chan struct{}, maxConcurrency)}
}

// Acquire blocks until a slot is available or context is cancelled.
func (b *Bulkhead) Acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot.
func (b *Bulkhead) Release() {
	<-b.sem
}
