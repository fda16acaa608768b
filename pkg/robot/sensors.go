package robot

import "sync"

// Sensors are the binary presence sensors of the loader and the trigger.
type Sensors interface {
	BallAtShooter() bool
	BallAtMiddle() bool
	BallAtTop() bool
	// ReleaseRequest reports whether the release trigger is held down.
	ReleaseRequest() bool
}

// Enabler reports whether the robot is enabled. Every blocking wait in the
// shooter re-checks it.
type Enabler interface {
	Enabled() bool
}

// EnablerFunc adapts a function to the Enabler interface.
type EnablerFunc func() bool

// Enabled calls f.
func (f EnablerFunc) Enabled() bool { return f() }

// Encoder is a cumulative counter with a resettable zero point.
type Encoder interface {
	Count() int
	Reset()
}

// Tension is the spool position of the launching arm.
//
// The reading is meaningless until it has been zeroed once in the current
// session. It is never re-zeroed automatically.
type Tension struct {
	enc       Encoder
	threshold int

	mu     sync.Mutex
	zeroed bool
}

// NewTension wraps an encoder. threshold is the zeroed threshold below which
// the arm counts as unloaded.
func NewTension(enc Encoder, threshold int) *Tension {
	return &Tension{enc: enc, threshold: threshold}
}

// Get returns the current tension.
func (t *Tension) Get() int {
	return t.enc.Count()
}

// Zeroed reports whether the encoder has been zeroed this session.
func (t *Tension) Zeroed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.zeroed
}

// Zero resets the encoder unconditionally. Use it once at session start.
func (t *Tension) Zero() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enc.Reset()
	t.zeroed = true
}

// ZeroIfSafe resets the encoder if the arm is unloaded below the zeroed
// threshold or the override switch is active. It reports whether it did.
func (t *Tension) ZeroIfSafe(override bool) bool {
	if !override && t.enc.Count() >= t.threshold {
		return false
	}
	t.Zero()
	return true
}
