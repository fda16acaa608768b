package shooter

import (
	"context"
	"sync"
)

// Handle tracks a background operation started by the coordinator.
type Handle struct {
	id     uint64
	kind   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newHandle(id uint64, kind string, cancel context.CancelFunc) *Handle {
	return &Handle{id: id, kind: kind, cancel: cancel, done: make(chan struct{})}
}

// ID returns the operation id.
func (h *Handle) ID() uint64 { return h.id }

// Kind returns "arm-move" or "release".
func (h *Handle) Kind() string { return h.kind }

// Done is closed once the operation has stopped and released its domains.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the result once Done is closed, nil before.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Cancel asks the operation to stop at its next poll point.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the operation has stopped and returns its result.
func (h *Handle) Wait() error {
	<-h.done
	return h.Err()
}

// Stop cancels the operation and waits until it has confirmed it stopped
// with its actuators de-energized.
func (h *Handle) Stop() error {
	h.Cancel()
	return h.Wait()
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}
