// Package workerpool bounds how many requests are processed at once.
package workerpool

import (
	"context"
	"errors"
	"fmt"

	"github.com/raine/listing-analyzer/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// DefaultSize is the number of concurrent workers when none is configured.
const DefaultSize = 10

// ErrUnavailable is returned when the caller gave up waiting for a worker.
var ErrUnavailable = errors.New("no worker available")

// Pool is a fixed number of worker slots.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// New creates a pool with size slots. Sizes below one use DefaultSize.
func New(size int) *Pool {
	if size < 1 {
		size = DefaultSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return int(p.size)
}

// Run waits for a free slot and runs fn in the calling goroutine. Waiting
// honours ctx; once fn has started it is not interrupted by the pool.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.WorkersBusy.Inc()
	defer func() {
		metrics.WorkersBusy.Dec()
		p.sem.Release(1)
	}()
	return fn()
}
