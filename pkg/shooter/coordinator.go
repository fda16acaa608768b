package shooter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/gwillem/sparky/pkg/robot"
)

// Hardware is the set of collaborators the control core drives.
type Hardware struct {
	Arm     robot.Motor
	Intake  robot.Motor // lower conveyor stage
	Feeder  robot.Motor // upper conveyor stage
	Release robot.Relay
	Sensors robot.Sensors
	Tension TensionReader
	Enabler robot.Enabler
	Drive   robot.Drive // optional
}

func (h Hardware) validate() error {
	switch {
	case h.Arm == nil:
		return errors.New("arm motor is required")
	case h.Intake == nil || h.Feeder == nil:
		return errors.New("both conveyor motors are required")
	case h.Release == nil:
		return errors.New("release actuator is required")
	case h.Sensors == nil:
		return errors.New("sensors are required")
	case h.Tension == nil:
		return errors.New("tension sensor is required")
	case h.Enabler == nil:
		return errors.New("enabler is required")
	}
	return nil
}

// EventKind classifies coordinator events.
type EventKind int

const (
	EventEntered EventKind = iota
	EventExited
	EventPhase
	EventParked
	EventResumed
	EventDropped
)

func (k EventKind) String() string {
	switch k {
	case EventEntered:
		return "entered"
	case EventExited:
		return "exited"
	case EventPhase:
		return "phase"
	case EventParked:
		return "parked"
	case EventResumed:
		return "resumed"
	default:
		return "dropped"
	}
}

// Event reports a change in domain ownership or session progress.
type Event struct {
	Kind   EventKind
	Domain string
	Op     uint64
	Phase  Phase
	Err    error
	Time   time.Time
}

// Coordinator owns the arm and release domains, the in-progress flags and
// the intake suspend flag. It starts background arm moves and release
// sessions and lends them the actuators for their duration.
type Coordinator struct {
	hw  Hardware
	cfg Config
	log zerolog.Logger

	arm     *Domain
	release *Domain
	suspend atomic.Bool
	phase   atomic.Int32

	armCtl *ArmController
	loader *Loader

	seq    atomic.Uint64
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator over hw.
func New(hw Hardware, cfg Config) (*Coordinator, error) {
	if err := hw.validate(); err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	if cfg.Timing.Poll <= 0 || cfg.Timing.TensionPoll <= 0 {
		return nil, errors.New("poll intervals must be positive")
	}
	if cfg.Speeds.Full <= 0 || cfg.Speeds.Coarse <= 0 {
		return nil, errors.New("arm speeds must be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		hw:      hw,
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "shooter").Logger(),
		arm:     newDomain("arm"),
		release: newDomain("release"),
		events:  make(chan Event, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.armCtl = &ArmController{
		motor:   hw.Arm,
		tension: hw.Tension,
		sensors: hw.Sensors,
		enabler: hw.Enabler,
		drive:   hw.Drive,
		speeds:  cfg.Speeds,
		timing:  cfg.Timing,
		log:     c.log.With().Str("domain", "arm").Logger(),
		metrics: cfg.Metrics,
	}
	c.loader = &Loader{
		lower:     hw.Intake,
		upper:     hw.Feeder,
		sensors:   hw.Sensors,
		suspended: c.suspend.Load,
		threshold: cfg.ZeroedThreshold,
		dwell:     cfg.AntiJamDwell,
	}
	return c, nil
}

// Config returns the configuration the coordinator was built with.
func (c *Coordinator) Config() Config { return c.cfg }

// Arm returns the arm position controller.
func (c *Coordinator) Arm() *ArmController { return c.armCtl }

// Loader returns the loader state machine.
func (c *Coordinator) Loader() *Loader { return c.loader }

// ArmDomain returns the arm domain.
func (c *Coordinator) ArmDomain() *Domain { return c.arm }

// ReleaseDomain returns the release domain.
func (c *Coordinator) ReleaseDomain() *Domain { return c.release }

// ArmMoveInProgress reports whether a background operation owns the arm
// motor. The polling loop must not write the arm motor while it is true.
func (c *Coordinator) ArmMoveInProgress() bool { return c.arm.InProgress() }

// ReleaseInProgress reports whether a release session owns the release
// actuator and the loader. The polling loop must not write them while it is
// true.
func (c *Coordinator) ReleaseInProgress() bool { return c.release.InProgress() }

// CommandArm writes a manual arm command unless an operation owns the arm
// domain. It reports whether the command was written.
func (c *Coordinator) CommandArm(ctx context.Context, cmd ArmCommand, speed float64) (bool, error) {
	return c.arm.WhileFree(func() error { return c.armCtl.Command(ctx, cmd, speed) })
}

// TickLoader runs one loader tick unless a release session owns the
// loader. The returned state is only meaningful when ok is true.
func (c *Coordinator) TickLoader(ctx context.Context, tension int, antiJam time.Duration, intent Intent) (st StageState, ok bool, err error) {
	ok, err = c.release.WhileFree(func() error {
		var tickErr error
		st, tickErr = c.loader.Tick(ctx, tension, antiJam, intent)
		return tickErr
	})
	return st, ok, err
}

// StopLoader stops both conveyor stages unless a release session owns the
// loader.
func (c *Coordinator) StopLoader(ctx context.Context) (bool, error) {
	return c.release.WhileFree(func() error { return c.loader.Stop(ctx) })
}

// IntakeSuspended reports whether a release session has suspended the loader.
func (c *Coordinator) IntakeSuspended() bool { return c.suspend.Load() }

// Phase returns the phase of the active release session.
func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

// Events returns a lossy stream of domain and session events.
func (c *Coordinator) Events() <-chan Event { return c.events }

func (c *Coordinator) emit(ev Event) {
	ev.Time = time.Now()
	select {
	case c.events <- ev:
	default:
		// Drop if channel full
	}
}

// RequestArmMove starts a one-shot background move under the arm domain.
// It returns false, and does nothing, if the arm domain is held.
//
// Background moves never exceed the coarse speed and always require a
// ball at the shooter before loading.
func (c *Coordinator) RequestArmMove(t Target) (*Handle, bool) {
	id := c.seq.Add(1)
	lease, ok := c.arm.TryEnter(id)
	if !ok {
		c.drop("arm-move", c.arm)
		return nil, false
	}
	if t.Speed <= 0 || t.Speed > c.cfg.Speeds.Coarse {
		t.Speed = c.cfg.Speeds.Coarse
	}
	t.RequireBall = true

	ctx, cancel := context.WithCancel(c.ctx)
	h := newHandle(id, "arm-move", cancel)
	c.emit(Event{Kind: EventEntered, Domain: c.arm.Name(), Op: id})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.armCtl.MoveTo(ctx, t)
		lease.Release()
		c.exited(c.arm, id, err)
		h.finish(err)
	}()
	return h, true
}

// MoveArm runs a move synchronously under the arm domain.
func (c *Coordinator) MoveArm(ctx context.Context, t Target) error {
	id := c.seq.Add(1)
	lease, ok := c.arm.TryEnter(id)
	if !ok {
		return fmt.Errorf("arm move: %w", ErrBusy)
	}
	c.emit(Event{Kind: EventEntered, Domain: c.arm.Name(), Op: id})
	err := c.armCtl.MoveTo(ctx, t)
	lease.Release()
	c.exited(c.arm, id, err)
	return err
}

// RequestFire starts a release session. It returns false, and does
// nothing, if a session is already active. captured is the tension at the
// time of the request, used by ReturnToCaptured.
func (c *Coordinator) RequestFire(captured int) (*Handle, bool) {
	id := c.seq.Add(1)
	lease, ok := c.release.TryEnter(id)
	if !ok {
		c.drop("fire", c.release)
		return nil, false
	}

	ctx, cancel := context.WithCancel(c.ctx)
	h := newHandle(id, "release", cancel)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		h.finish(c.runSession(ctx, id, captured, lease))
	}()
	return h, true
}

// Fire runs a release session synchronously.
func (c *Coordinator) Fire(ctx context.Context, captured int) error {
	id := c.seq.Add(1)
	lease, ok := c.release.TryEnter(id)
	if !ok {
		return fmt.Errorf("fire: %w", ErrBusy)
	}
	return c.runSession(ctx, id, captured, lease)
}

func (c *Coordinator) runSession(ctx context.Context, id uint64, captured int, lease *Lease) error {
	s := &session{
		c:        c,
		id:       id,
		captured: captured,
		log:      c.log.With().Uint64("session", id).Logger(),
	}
	c.emit(Event{Kind: EventEntered, Domain: c.release.Name(), Op: id})
	s.log.Info().Int("captured", captured).Msg("release session start")

	err := s.run(ctx)
	s.finish(err)
	lease.Release()
	c.phase.Store(int32(PhaseIdle))

	c.exited(c.release, id, err)
	c.cfg.Metrics.session(err)
	return err
}

func (c *Coordinator) drop(request string, d *Domain) {
	c.log.Debug().Str("request", request).Uint64("owner", d.Owner()).Msg("request dropped: domain busy")
	c.cfg.Metrics.dropped(request)
	c.emit(Event{Kind: EventDropped, Domain: d.Name()})
}

func (c *Coordinator) exited(d *Domain, id uint64, err error) {
	ev := c.log.Info()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Str("domain", d.Name()).Uint64("op", id).Msg("domain released")
	c.emit(Event{Kind: EventExited, Domain: d.Name(), Op: id, Err: err})
}

// Wait blocks until every background operation has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels all background operations, waits for them and leaves every
// actuator de-energized.
func (c *Coordinator) Close() error {
	c.cancel()
	c.wg.Wait()
	ctx := context.Background()
	return multierr.Combine(
		c.armCtl.Brake(ctx),
		c.loader.Stop(ctx),
		c.hw.Release.Set(ctx, robot.RelayOff),
	)
}
