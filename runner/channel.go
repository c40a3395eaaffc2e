package runner

import (
	"errors"
	"sync"

	"github.com/ethereum-optimism/infra/bettertest/types"
)

// ResultChannel carries report fragments from any number of pipeline workers
// to the single consumer. Fragments from different producers are not ordered.
type ResultChannel struct {
	mu     sync.Mutex
	queued []types.ReportFragment
}

// NewResultChannel creates an empty channel. sizeHint preallocates room for
// that many fragments; the queue grows past it as needed.
func NewResultChannel(sizeHint int) *ResultChannel {
	return &ResultChannel{queued: make([]types.ReportFragment, 0, max(sizeHint, 0))}
}

// Put enqueues a fragment without blocking. It is safe for concurrent use.
func (c *ResultChannel) Put(f types.ReportFragment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, f)
}

// take removes and returns everything queued so far
func (c *ResultChannel) take() []types.ReportFragment {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queued
	c.queued = nil
	return batch
}

// Drain hands every queued fragment to fn and returns once the queue is empty.
// It never waits for producers, so it may be called at any time. fn runs
// without the lock held. Every fragment is consumed even if fn fails; the
// errors are joined.
func (c *ResultChannel) Drain(fn func(types.ReportFragment) error) error {
	var errs []error
	for {
		batch := c.take()
		if len(batch) == 0 {
			return errors.Join(errs...)
		}
		for _, f := range batch {
			if err := fn(f); err != nil {
				errs = append(errs, err)
			}
		}
	}
}

// Len returns the number of queued fragments
func (c *ResultChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queued)
}
