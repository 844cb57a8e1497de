package main

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// cleanupList collects shutdown functions in registration order and
// runs them all on runAll, aggregating every failure instead of
// stopping at the first (resource release is scoped to run on all exit
// paths, spec.md §5).
type cleanupList struct {
	mu    sync.Mutex
	funcs []func() error
}

func newCleanupList() *cleanupList {
	return &cleanupList{}
}

func (c *cleanupList) add(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funcs = append(c.funcs, f)
}

// runAll runs every registered function in reverse registration order
// (last-started resource stopped first) and returns the aggregate
// error, or nil if every function succeeded.
func (c *cleanupList) runAll() error {
	c.mu.Lock()
	funcs := append([]func() error(nil), c.funcs...)
	c.mu.Unlock()

	var result *multierror.Error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
