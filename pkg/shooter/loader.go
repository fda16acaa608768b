package shooter

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/sparky/pkg/robot"
)

// Conveyor outputs.
const (
	intakeLoad   = 1.0
	intakeUnload = -1.0
)

// StageCommand is the command for one conveyor stage.
type StageCommand int

const (
	StageStop StageCommand = iota
	StageLoad
	StageUnload
)

func (c StageCommand) String() string {
	switch c {
	case StageLoad:
		return "load"
	case StageUnload:
		return "unload"
	default:
		return "stop"
	}
}

// Output returns the motor output for the command.
func (c StageCommand) Output() float64 {
	switch c {
	case StageLoad:
		return intakeLoad
	case StageUnload:
		return intakeUnload
	default:
		return 0
	}
}

// Intent is the operator's manual loader command.
type Intent int

const (
	IntentStop Intent = iota
	IntentLoad
	IntentUnload
)

func (i Intent) String() string {
	switch i {
	case IntentLoad:
		return "load"
	case IntentUnload:
		return "unload"
	default:
		return "stop"
	}
}

// StageState is the pair of conveyor commands for one tick.
type StageState struct {
	Lower StageCommand
	Upper StageCommand
}

// LoaderInput is everything a loader decision depends on.
type LoaderInput struct {
	Shooter, Middle, Top bool
	Tension              int
	AntiJam              time.Duration
	Intent               Intent
	Suspended            bool
}

// Decide computes the stage commands for one tick.
func Decide(in LoaderInput, threshold int, dwell time.Duration) StageState {
	if in.Suspended || in.Intent == IntentStop {
		return StageState{StageStop, StageStop}
	}
	if in.Intent == IntentUnload {
		return StageState{StageUnload, StageUnload}
	}

	var st StageState
	switch {
	case in.Shooter && in.Middle && in.Top:
		st.Lower = StageStop
	case in.Middle && in.Top && in.Tension > threshold:
		// arm drawn back with a ball staged
		st.Lower = StageStop
	default:
		st.Lower = StageLoad
	}

	switch {
	case !in.Shooter && in.Tension < threshold && in.AntiJam > dwell:
		st.Upper = StageLoad
	case !in.Top:
		st.Upper = StageLoad
	default:
		st.Upper = StageStop
	}
	return st
}

// Loader drives the two conveyor stages.
type Loader struct {
	lower, upper robot.Motor
	sensors      robot.Sensors
	suspended    func() bool
	threshold    int
	dwell        time.Duration
}

// Tick computes the stage commands from the sensors and applies them.
func (l *Loader) Tick(ctx context.Context, tension int, antiJam time.Duration, intent Intent) (StageState, error) {
	st := Decide(LoaderInput{
		Shooter:   l.sensors.BallAtShooter(),
		Middle:    l.sensors.BallAtMiddle(),
		Top:       l.sensors.BallAtTop(),
		Tension:   tension,
		AntiJam:   antiJam,
		Intent:    intent,
		Suspended: l.suspended(),
	}, l.threshold, l.dwell)
	return st, l.Apply(ctx, st)
}

// Apply writes st to the conveyor motors.
func (l *Loader) Apply(ctx context.Context, st StageState) error {
	return multierr.Combine(
		l.lower.Set(ctx, st.Lower.Output()),
		l.upper.Set(ctx, st.Upper.Output()),
	)
}

// Stop stops both stages.
func (l *Loader) Stop(ctx context.Context) error {
	return l.Apply(ctx, StageState{StageStop, StageStop})
}

// Feed runs the upper stage forward, leaving the lower stage alone.
func (l *Loader) Feed(ctx context.Context) error {
	return l.upper.Set(ctx, StageLoad.Output())
}

// AntiJamTimer measures how long the shooter sensor has been clear.
type AntiJamTimer struct {
	now  func() time.Time
	last time.Time
}

// NewAntiJamTimer starts a timer. A nil now uses time.Now.
func NewAntiJamTimer(now func() time.Time) *AntiJamTimer {
	if now == nil {
		now = time.Now
	}
	return &AntiJamTimer{now: now, last: now()}
}

// Observe resets the timer while a ball sits at the shooter.
func (t *AntiJamTimer) Observe(ballAtShooter bool) {
	if ballAtShooter {
		t.Reset()
	}
}

// Reset restarts the timer.
func (t *AntiJamTimer) Reset() { t.last = t.now() }

// Elapsed returns the time since the last reset.
func (t *AntiJamTimer) Elapsed() time.Duration { return t.now().Sub(t.last) }
