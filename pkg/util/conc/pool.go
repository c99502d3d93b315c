package conc

import (
	ants "github.com/panjf2000/ants/v2"
)

// Pool wraps an ants.Pool, the bounded goroutine worker pool backing
// parallel per-session fan-out (registry broadping/stop).
type Pool struct {
	inner *ants.Pool
}

// NewPool creates a pool with the given capacity. A non-positive size
// means unbounded, matching ants' own convention.
func NewPool(size int, opts ...PoolOption) (*Pool, error) {
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}

	p, err := ants.NewPool(size, opt.antsOptions()...)
	if err != nil {
		return nil, err
	}
	return &Pool{inner: p}, nil
}

// Submit queues fn for execution on a pool worker. It blocks if the pool
// is non-blocking-disabled and at capacity.
func (p *Pool) Submit(fn func()) error {
	return p.inner.Submit(fn)
}

// Running returns the number of workers currently executing tasks.
func (p *Pool) Running() int {
	return p.inner.Running()
}

// Release frees all idle workers and stops accepting new tasks.
func (p *Pool) Release() {
	p.inner.Release()
}
