// Package auto runs the autonomous two-shot routine.
package auto

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/sparky/pkg/shooter"
)

// Delays selected by the three start delay switches.
var switchDelays = [3]time.Duration{3 * time.Second, 5 * time.Second, 7 * time.Second}

// DelayFor returns the start delay for the switch positions. The first
// switch that is on wins; no switch means no delay.
func DelayFor(switches [3]bool) time.Duration {
	for i, on := range switches {
		if on {
			return switchDelays[i]
		}
	}
	return 0
}

// Config holds configuration for the routine.
type Config struct {
	Coordinator *shooter.Coordinator
	Tension     shooter.TensionReader
	Target      int // launch tension for both shots
	Delay       time.Duration
	Logger      zerolog.Logger
}

// Routine moves the arm to the launch tension and fires, twice. The first
// move waits for a ball at the shooter; the second loads regardless.
type Routine struct {
	coord   *shooter.Coordinator
	tension shooter.TensionReader
	target  int
	delay   time.Duration
	log     zerolog.Logger
}

// New creates a routine.
func New(cfg Config) (*Routine, error) {
	if cfg.Coordinator == nil || cfg.Tension == nil {
		return nil, fmt.Errorf("coordinator and tension are required")
	}
	return &Routine{
		coord:   cfg.Coordinator,
		tension: cfg.Tension,
		target:  cfg.Target,
		delay:   cfg.Delay,
		log:     cfg.Logger.With().Str("component", "auto").Logger(),
	}, nil
}

// Run executes the routine. It returns the first error, including
// shooter.ErrDisabled when the robot is disabled during a move.
func (r *Routine) Run(ctx context.Context) error {
	if r.delay > 0 {
		r.log.Info().Dur("delay", r.delay).Msg("waiting to start")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.delay):
		}
	}

	speed := r.coord.Config().Speeds.Coarse
	for i, requireBall := range []bool{true, false} {
		shot := i + 1
		r.log.Info().Int("shot", shot).Int("target", r.target).Bool("require_ball", requireBall).Msg("arming")
		err := r.coord.MoveArm(ctx, shooter.Target{Position: r.target, Speed: speed, RequireBall: requireBall})
		if err != nil {
			return fmt.Errorf("shot %d: arm: %w", shot, err)
		}
		if err := r.coord.Fire(ctx, r.tension.Get()); err != nil {
			return fmt.Errorf("shot %d: fire: %w", shot, err)
		}
		r.log.Info().Int("shot", shot).Msg("fired")
	}
	return nil
}
