package shooter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/sparky/pkg/robot"
)

// ArmCommand is what the arm motor is asked to do.
type ArmCommand int

const (
	Idle   ArmCommand = iota
	Load              // increase tension, output -speed
	Unload            // decrease tension, output +speed
	Brake             // hold the spool against backlash
)

func (c ArmCommand) String() string {
	switch c {
	case Load:
		return "load"
	case Unload:
		return "unload"
	case Brake:
		return "brake"
	default:
		return "idle"
	}
}

// TensionReader reads the spool tension.
type TensionReader interface {
	Get() int
}

// Target is a requested arm position.
type Target struct {
	Position int
	Speed    float64 // positive magnitude
	// RequireBall refuses to load unless a ball sits at the shooter.
	RequireBall bool
}

// ArmController drives the arm motor toward a target tension.
type ArmController struct {
	motor   robot.Motor
	tension TensionReader
	sensors robot.Sensors
	enabler robot.Enabler
	drive   robot.Drive
	speeds  Speeds
	timing  Timing
	log     zerolog.Logger
	metrics *Metrics

	mu     sync.Mutex
	last   ArmCommand
	output float64
}

// Output returns the motor output for cmd at speed.
func (a *ArmController) Output(cmd ArmCommand, speed float64) float64 {
	switch cmd {
	case Load:
		return -speed
	case Unload:
		return speed
	case Brake:
		return a.speeds.Brake
	default:
		return 0
	}
}

// Command writes a single command to the arm motor.
func (a *ArmController) Command(ctx context.Context, cmd ArmCommand, speed float64) error {
	out := a.Output(cmd, speed)
	a.mu.Lock()
	a.last, a.output = cmd, out
	a.mu.Unlock()
	if err := a.motor.Set(ctx, out); err != nil {
		return fmt.Errorf("arm %s: %w", cmd, err)
	}
	return nil
}

// Brake puts the spool in its resting state. It ignores cancellation of ctx.
func (a *ArmController) Brake(ctx context.Context) error {
	return a.Command(context.WithoutCancel(ctx), Brake, 0)
}

// Last returns the most recent command and motor output.
func (a *ArmController) Last() (ArmCommand, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.output
}

// MoveTo drives the arm to t.Position and brakes once on arrival.
//
// Direction is fixed when the move starts: a load runs while the tension is
// below the target, an unload while it is above. A move already at its
// target only brakes. A load with RequireBall and no ball at the shooter is
// deferred: the arm is braked and MoveTo returns nil.
//
// MoveTo returns ErrDisabled if the robot was disabled, a *TimeoutError if
// Timing.MoveTimeout elapsed and an ErrCanceled error if ctx ended. The arm
// is braked on every return path.
func (a *ArmController) MoveTo(ctx context.Context, t Target) error {
	pos := a.tension.Get()

	var cmd ArmCommand
	var more func(int) bool
	switch {
	case pos < t.Position:
		if t.RequireBall && !a.sensors.BallAtShooter() {
			a.log.Debug().Int("tension", pos).Int("target", t.Position).Msg("load deferred: no ball at shooter")
			a.metrics.dropped("arm-interlock")
			return a.Brake(ctx)
		}
		cmd, more = Load, func(p int) bool { return p < t.Position }
	case pos > t.Position:
		cmd, more = Unload, func(p int) bool { return p > t.Position }
	default:
		return a.Brake(ctx)
	}

	a.log.Debug().Int("tension", pos).Int("target", t.Position).Stringer("cmd", cmd).Float64("speed", t.Speed).Msg("arm move")
	start := time.Now()
	err := a.run(ctx, cmd, t.Speed, more)
	if berr := a.Brake(ctx); berr != nil && err == nil {
		err = berr
	}
	a.metrics.move(err, time.Since(start))
	return err
}

func (a *ArmController) run(ctx context.Context, cmd ArmCommand, speed float64, more func(int) bool) error {
	start := time.Now()
	for more(a.tension.Get()) {
		if !a.enabler.Enabled() {
			return ErrDisabled
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("arm move: %w: %w", ErrCanceled, err)
		}
		if limit := a.timing.MoveTimeout; limit > 0 && time.Since(start) > limit {
			return &TimeoutError{Op: "arm move", After: limit}
		}
		if a.drive != nil {
			if err := a.drive.Stop(ctx); err != nil {
				a.log.Warn().Err(err).Msg("hold drive")
			}
		}
		if err := a.Command(ctx, cmd, speed); err != nil {
			return err
		}
		if err := sleep(ctx, a.timing.Poll); err != nil {
			return fmt.Errorf("arm move: %w: %w", ErrCanceled, err)
		}
	}
	return nil
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
