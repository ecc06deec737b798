package npu

import (
	"fmt"
	"sync"
)

// Accelerator drivers carry process-wide state: the first open must perform
// driver initialization and the last close must release it. Acquire serializes
// open/teardown and keeps a live-runtime count so that teardown ordering bugs
// surface as errors instead of undefined driver behavior.

var (
	driverMu   sync.Mutex
	driverRefs int
)

type countedRuntime struct {
	Runtime
	mu     sync.Mutex
	closed bool
}

// Acquire opens a runtime from factory under the process-wide driver lock.
// Closing the returned runtime drops the reference; the count reaching zero
// corresponds to full driver teardown.
func Acquire(factory Factory) (Runtime, error) {
	driverMu.Lock()
	defer driverMu.Unlock()

	rt, err := factory()
	if err != nil {
		return nil, fmt.Errorf("open npu runtime: %w", err)
	}
	driverRefs++
	return &countedRuntime{Runtime: rt}, nil
}

// Close releases the runtime under the same lock Acquire opens under, so
// vendor init and deinit can never interleave across goroutines.
func (c *countedRuntime) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	driverMu.Lock()
	defer driverMu.Unlock()
	err := c.Runtime.Close()
	driverRefs--
	return err
}

// LiveRuntimes returns the number of acquired runtimes that have not been
// closed. Used by resource-accounting tests.
func LiveRuntimes() int {
	driverMu.Lock()
	defer driverMu.Unlock()
	return driverRefs
}
