// Package teleop provides the operator polling loop of the shooter.
package teleop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/shooter"
)

// Preset is an arm preset button.
type Preset int

const (
	PresetNone Preset = iota
	PresetLoad
	PresetZero
	PresetHigh
	PresetLast // tension captured at the last fire
)

func (p Preset) String() string {
	switch p {
	case PresetLoad:
		return "load"
	case PresetZero:
		return "zero"
	case PresetHigh:
		return "high"
	case PresetLast:
		return "last"
	default:
		return "none"
	}
}

// Controls is one sample of the operator inputs.
type Controls struct {
	CoarseLoad   bool
	CoarseUnload bool
	FineLoad     bool
	FineUnload   bool
	Preset       Preset
	Zero         bool // zero the tension encoder
	Override     bool // allow unloading below zero and zeroing a loaded arm
	Intake       shooter.Intent
	Fire         bool
}

// Input samples the operator controls once per tick.
type Input interface {
	Read() Controls
}

// InputFunc adapts a function to the Input interface.
type InputFunc func() Controls

// Read calls f.
func (f InputFunc) Read() Controls { return f() }

// Torquer switches the servo torque. Start enables it and the loop
// disables it on the way out.
type Torquer interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// State represents the current state of the shooter.
type State struct {
	Tension   int
	Zeroed    bool
	Enabled   bool
	Shooter   bool
	Middle    bool
	Top       bool
	Trigger   bool
	ArmMove   bool
	Release   bool
	Suspended bool
	Phase     shooter.Phase
	Arm       shooter.ArmCommand
	ArmOutput float64
	Stages    shooter.StageState
	AntiJam   time.Duration
	Timestamp time.Time
	Error     error
}

// Presets are the arm positions behind the preset buttons.
type Presets struct {
	Load int
	Zero int
	High int
}

// Config holds configuration for the controller.
type Config struct {
	Coordinator *shooter.Coordinator
	Tension     *robot.Tension
	Sensors     robot.Sensors
	Enabler     robot.Enabler
	Input       Input
	Torque      Torquer // optional
	Presets     Presets
	Hz          int
	Logger      zerolog.Logger
	Now         func() time.Time // anti-jam clock, time.Now if nil
}

// Controller runs the operator polling loop. It writes the arm motor only
// while no background arm move is in progress and ticks the loader only
// while no release session is active.
type Controller struct {
	coord   *shooter.Coordinator
	tension *robot.Tension
	sensors robot.Sensors
	enabler robot.Enabler
	input   Input
	torque  Torquer
	presets Presets
	hz      int
	logger  zerolog.Logger
	antiJam *shooter.AntiJamTimer

	mu           sync.RWMutex
	running      bool
	lastPosition int
	stages       shooter.StageState
	stateCh      chan State
	logCh        chan string
}

// NewController creates a new operator controller.
func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Coordinator == nil:
		return nil, fmt.Errorf("coordinator is required")
	case cfg.Tension == nil || cfg.Sensors == nil || cfg.Enabler == nil:
		return nil, fmt.Errorf("tension, sensors and enabler are required")
	case cfg.Input == nil:
		return nil, fmt.Errorf("input is required")
	}
	if cfg.Hz <= 0 {
		cfg.Hz = 200
	}

	return &Controller{
		coord:   cfg.Coordinator,
		tension: cfg.Tension,
		sensors: cfg.Sensors,
		enabler: cfg.Enabler,
		input:   cfg.Input,
		torque:  cfg.Torque,
		presets: cfg.Presets,
		hz:      cfg.Hz,
		logger:  cfg.Logger.With().Str("component", "teleop").Logger(),
		antiJam: shooter.NewAntiJamTimer(cfg.Now),
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 32),
	}, nil
}

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the control frequency.
func (c *Controller) Hz() int {
	return c.hz
}

// LastPosition returns the tension captured at the last accepted fire.
func (c *Controller) LastPosition() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPosition
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start zeroes the tension once and runs the polling loop until ctx ends.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("already running")
	}
	c.running = true
	c.mu.Unlock()

	if c.torque != nil {
		if err := c.torque.Enable(ctx); err != nil {
			c.log("Warning: failed to enable servos: %v", err)
		} else {
			c.log("Servos: torque enabled")
		}
	}

	c.tension.Zero()
	c.antiJam.Reset()
	c.logger.Info().Int("hz", c.hz).Msg("operator loop started, tension zeroed")
	c.log("Operator loop started at %d Hz", c.hz)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) step(ctx context.Context) {
	c.drainEvents()

	in := c.input.Read()
	tension := c.tension.Get()
	ball := c.sensors.BallAtShooter()

	if !c.enabler.Enabled() {
		err := c.idle(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("disabled step")
		}
		c.sendState(c.snapshot(tension, err))
		return
	}

	var errs error
	if !c.coord.ArmMoveInProgress() {
		errs = multierr.Append(errs, c.manualArm(ctx, in, tension, ball))
	}

	c.antiJam.Observe(ball)
	if !c.coord.ReleaseInProgress() {
		st, ok, err := c.coord.TickLoader(ctx, tension, c.antiJam.Elapsed(), in.Intake)
		errs = multierr.Append(errs, err)
		if ok {
			c.mu.Lock()
			c.stages = st
			c.mu.Unlock()
		}
	}

	if in.Fire && !c.coord.ReleaseInProgress() {
		c.fire(tension)
	}

	if errs != nil {
		c.logger.Warn().Err(errs).Msg("control step")
		c.log("Control error: %v", errs)
	}
	c.sendState(c.snapshot(tension, errs))
}

// idle holds every actuator the loop owns at rest while the robot is
// disabled. Operations that own a domain handle disable themselves.
func (c *Controller) idle(ctx context.Context) error {
	_, armErr := c.coord.CommandArm(ctx, shooter.Brake, 0)
	stopped, loaderErr := c.coord.StopLoader(ctx)
	if stopped {
		c.mu.Lock()
		c.stages = shooter.StageState{Lower: shooter.StageStop, Upper: shooter.StageStop}
		c.mu.Unlock()
	}
	return multierr.Combine(armErr, loaderErr)
}

// command writes a manual arm command unless a background operation took
// the arm since the last check.
func (c *Controller) command(ctx context.Context, cmd shooter.ArmCommand, speed float64) error {
	_, err := c.coord.CommandArm(ctx, cmd, speed)
	return err
}

// manualArm applies the jog buttons in priority order. Unloading needs a
// positive tension or the override; loading needs a ball at the shooter.
func (c *Controller) manualArm(ctx context.Context, in Controls, tension int, ball bool) error {
	speeds := c.coord.Config().Speeds

	if in.Zero {
		if c.tension.ZeroIfSafe(in.Override) {
			c.logger.Info().Int("was", tension).Bool("override", in.Override).Msg("tension zeroed")
			c.log("Tension zeroed (was %d)", tension)
			tension = 0
		} else {
			c.log("Zero refused: tension %d above threshold", tension)
		}
	}

	canUnload := tension > 0 || in.Override
	switch {
	case in.CoarseUnload && canUnload:
		return c.command(ctx, shooter.Unload, speeds.Coarse)
	case in.CoarseLoad && ball:
		return c.command(ctx, shooter.Load, speeds.Coarse)
	case in.FineLoad && ball:
		return c.command(ctx, shooter.Load, speeds.FineLoad)
	case in.FineUnload && canUnload:
		return c.command(ctx, shooter.Unload, speeds.FineUnload)
	case in.Preset != PresetNone:
		c.requestPreset(in.Preset)
		return nil
	default:
		return c.command(ctx, shooter.Brake, 0)
	}
}

func (c *Controller) requestPreset(p Preset) {
	var pos int
	switch p {
	case PresetLoad:
		pos = c.presets.Load
	case PresetZero:
		pos = c.presets.Zero
	case PresetHigh:
		pos = c.presets.High
	case PresetLast:
		pos = c.LastPosition()
	}
	if _, ok := c.coord.RequestArmMove(shooter.Target{Position: pos}); ok {
		c.log("Arm to %s preset (%d)", p, pos)
	}
}

func (c *Controller) fire(tension int) {
	if _, ok := c.coord.RequestFire(tension); !ok {
		return
	}
	c.mu.Lock()
	c.lastPosition = tension
	c.mu.Unlock()
	c.log("Fire at tension %d", tension)
}

// drainEvents forwards coordinator events to the log channel.
func (c *Controller) drainEvents() {
	for {
		select {
		case ev := <-c.coord.Events():
			c.logEvent(ev)
		default:
			return
		}
	}
}

func (c *Controller) logEvent(ev shooter.Event) {
	switch ev.Kind {
	case shooter.EventPhase:
		c.log("Release %d: %s", ev.Op, ev.Phase)
	case shooter.EventParked, shooter.EventResumed:
		c.log("Release %d %s in %s", ev.Op, ev.Kind, ev.Phase)
	case shooter.EventExited:
		if ev.Err != nil {
			c.log("%s %d failed: %v", ev.Domain, ev.Op, ev.Err)
		}
	}
}

func (c *Controller) snapshot(tension int, err error) State {
	cmd, out := c.coord.Arm().Last()
	c.mu.RLock()
	stages := c.stages
	c.mu.RUnlock()
	return State{
		Tension:   tension,
		Zeroed:    c.tension.Zeroed(),
		Enabled:   c.enabler.Enabled(),
		Shooter:   c.sensors.BallAtShooter(),
		Middle:    c.sensors.BallAtMiddle(),
		Top:       c.sensors.BallAtTop(),
		Trigger:   c.sensors.ReleaseRequest(),
		ArmMove:   c.coord.ArmMoveInProgress(),
		Release:   c.coord.ReleaseInProgress(),
		Suspended: c.coord.IntakeSuspended(),
		Phase:     c.coord.Phase(),
		Arm:       cmd,
		ArmOutput: out,
		Stages:    stages,
		AntiJam:   c.antiJam.Elapsed(),
		Timestamp: time.Now(),
		Error:     err,
	}
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	ctx := context.Background()
	if _, err := c.coord.CommandArm(ctx, shooter.Brake, 0); err != nil {
		c.log("Warning: failed to brake arm: %v", err)
	}
	if _, err := c.coord.StopLoader(ctx); err != nil {
		c.log("Warning: failed to stop loader: %v", err)
	}
	if c.torque != nil {
		if err := c.torque.Disable(ctx); err != nil {
			c.log("Warning: failed to disable servos: %v", err)
		} else {
			c.log("Servos: torque disabled")
		}
	}
	c.logger.Info().Msg("operator loop stopped")
	c.log("Operator loop stopped")
}
