// Package pool bounds the number of concurrent external toolchain invocations.
package pool

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Sizing bounds used by ResolveSize.
const (
	MinSize = 1
	MaxSize = 16

	// cpuDivisor leaves headroom for the TeX and ImageMagick child processes.
	cpuDivisor = 2
)

// Pool limits concurrent render jobs using a weighted semaphore.
// Waiting callers queue in FIFO order; the wait is bounded by their context.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	running atomic.Int64
	waiting atomic.Int64
}

// New creates a Pool that allows at most limit concurrent jobs.
func New(limit int) *Pool {
	if limit < MinSize {
		limit = MinSize
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit)), size: limit}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is done while waiting for a slot; fn is then never called.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.running.Add(1)
	defer p.running.Add(-1)
	return fn()
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// Running returns the number of jobs currently holding a slot.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Waiting returns the number of callers queued for a slot.
func (p *Pool) Waiting() int {
	return int(p.waiting.Load())
}

// ResolveSize determines the pool size.
// An explicit positive value wins; otherwise the size is derived from
// GOMAXPROCS (which automaxprocs adjusts to the container CPU quota).
func ResolveSize(explicit int) int {
	if explicit > 0 {
		return explicit
	}

	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinSize {
		return MinSize
	}
	if n > MaxSize {
		return MaxSize
	}
	return n
}
