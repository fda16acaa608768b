package shooter

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDisabled is returned by a synchronous move that stopped because the
	// robot was disabled. The arm is braked when it is returned.
	ErrDisabled = errors.New("robot disabled")
	// ErrTimeout is the kind of every bounded wait that gave up.
	ErrTimeout = errors.New("timed out")
	// ErrCanceled is reported by a handle whose operation was canceled.
	ErrCanceled = errors.New("canceled")
	// ErrBusy is returned by synchronous entry points when the domain they
	// need is held by another operation.
	ErrBusy = errors.New("domain busy")
)

// TimeoutError reports a wait whose success predicate never held, usually a
// stuck sensor.
type TimeoutError struct {
	Op    string
	Phase Phase
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Phase != PhaseIdle {
		return fmt.Sprintf("%s: %s phase timed out after %v", e.Op, e.Phase, e.After)
	}
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }
