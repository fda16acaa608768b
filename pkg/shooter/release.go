package shooter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/gwillem/sparky/pkg/robot"
)

// fireDirection is the release relay direction that trips the latch.
const fireDirection = robot.RelayReverse

// Phase is a step of a release session.
type Phase int32

const (
	PhaseIdle    Phase = iota
	PhaseActuate       // release held open while the trigger is down
	PhaseSettle        // actuator settle, actuator off, mechanical settle
	PhaseSuspend       // intake suspended, arm domain taken
	PhaseRearm         // full speed stroke to zero
	PhaseSlack         // wait for the spool to slacken
	PhaseRefeed        // push the staged ball path clear
	PhaseReturn        // back to the ready position
	PhaseRelease       // flags cleared, domains released
)

var phaseNames = [...]string{
	PhaseIdle:    "idle",
	PhaseActuate: "actuate",
	PhaseSettle:  "settle",
	PhaseSuspend: "suspend",
	PhaseRearm:   "rearm",
	PhaseSlack:   "slack",
	PhaseRefeed:  "refeed",
	PhaseReturn:  "return",
	PhaseRelease: "release",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// session is one run of the release sequence.
//
// Every wait re-checks the enabled predicate. While the robot is disabled
// the session de-energizes the actuators of the current phase and parks at
// that poll point; on re-enable it resumes the same phase. Nothing is rolled
// back. Cancellation of ctx is the only abort.
type session struct {
	c        *Coordinator
	id       uint64
	captured int
	armLease *Lease
	log      zerolog.Logger
}

func (s *session) run(ctx context.Context) error {
	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseActuate, s.actuate},
		{PhaseSettle, s.settle},
		{PhaseSuspend, s.suspend},
		{PhaseRearm, s.rearm},
		{PhaseSlack, s.slack},
		{PhaseRefeed, s.refeed},
		{PhaseReturn, s.ret},
	}
	for _, st := range steps {
		s.enter(st.phase)
		start := time.Now()
		if err := st.fn(ctx); err != nil {
			return err
		}
		s.c.cfg.Metrics.phase(st.phase, time.Since(start))
	}
	s.enter(PhaseRelease)
	return nil
}

func (s *session) enter(p Phase) {
	s.c.phase.Store(int32(p))
	s.log.Debug().Stringer("phase", p).Msg("release phase")
	s.c.emit(Event{Kind: EventPhase, Domain: s.c.release.Name(), Op: s.id, Phase: p})
}

func (s *session) phase() Phase { return s.c.Phase() }

func (s *session) actuate(ctx context.Context) error {
	// The loader belongs to this session now; leave nothing running.
	if err := s.c.loader.Stop(ctx); err != nil {
		return err
	}
	return s.poll(ctx, s.c.cfg.Timing.Poll, s.c.hw.Sensors.ReleaseRequest, s.fire, s.releaseOff)
}

func (s *session) settle(ctx context.Context) error {
	t := s.c.cfg.Timing
	if err := s.hold(ctx, t.ActuatorSettle, nil, s.releaseOff); err != nil {
		return err
	}
	if err := s.releaseOff(ctx); err != nil {
		return err
	}
	return s.hold(ctx, t.MechanicalSettle, nil, nil)
}

func (s *session) suspend(ctx context.Context) error {
	s.c.suspend.Store(true)
	return s.poll(ctx, s.c.cfg.Timing.Poll, func() bool { return !s.enterArm() }, nil, nil)
}

func (s *session) enterArm() bool {
	if s.armLease != nil {
		return true
	}
	lease, ok := s.c.arm.TryEnter(s.id)
	if !ok {
		return false
	}
	s.armLease = lease
	s.c.emit(Event{Kind: EventEntered, Domain: s.c.arm.Name(), Op: s.id})
	return true
}

func (s *session) rearm(ctx context.Context) error {
	return s.move(ctx, Target{Position: 0, Speed: s.c.cfg.Speeds.Full})
}

func (s *session) slack(ctx context.Context) error {
	tension, threshold := s.c.hw.Tension, s.c.cfg.ZeroedThreshold
	return s.poll(ctx, s.c.cfg.Timing.TensionPoll, func() bool { return tension.Get() > threshold }, nil, nil)
}

func (s *session) refeed(ctx context.Context) error {
	l := s.c.loader
	if err := s.poll(ctx, s.c.cfg.Timing.Poll, s.c.hw.Sensors.BallAtTop, l.Feed, l.Stop); err != nil {
		return err
	}
	if err := s.hold(ctx, s.c.cfg.Timing.RefeedDwell, l.Feed, l.Stop); err != nil {
		return err
	}
	return l.Stop(ctx)
}

func (s *session) ret(ctx context.Context) error {
	pos := s.c.cfg.ReadyPreset
	if s.c.cfg.ReturnPolicy == ReturnToCaptured {
		pos = s.captured
	}
	return s.move(ctx, Target{Position: pos, Speed: s.c.cfg.Speeds.Coarse, RequireBall: true})
}

// move runs a synchronous arm move, parking and retrying while disabled.
func (s *session) move(ctx context.Context, t Target) error {
	for {
		err := s.c.armCtl.MoveTo(ctx, t)
		if !errors.Is(err, ErrDisabled) {
			return err
		}
		if err := s.park(ctx, nil); err != nil {
			return err
		}
	}
}

// poll runs step every interval while cond holds. The wait is bounded by
// Timing.WaitTimeout, not counting time parked while disabled.
func (s *session) poll(ctx context.Context, interval time.Duration, cond func() bool, step, idle func(context.Context) error) error {
	limit := s.c.cfg.Timing.WaitTimeout
	start := time.Now()
	for cond() {
		if !s.c.hw.Enabler.Enabled() {
			parked := time.Now()
			if err := s.park(ctx, idle); err != nil {
				return err
			}
			start = start.Add(time.Since(parked))
			continue
		}
		if limit > 0 && time.Since(start) > limit {
			return &TimeoutError{Op: "release", Phase: s.phase(), After: limit}
		}
		if step != nil {
			if err := step(ctx); err != nil {
				return err
			}
		}
		if err := sleep(ctx, interval); err != nil {
			return canceled(err)
		}
	}
	return nil
}

// hold waits for d, running step every poll. Time parked does not count.
func (s *session) hold(ctx context.Context, d time.Duration, step, idle func(context.Context) error) error {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if !s.c.hw.Enabler.Enabled() {
			parked := time.Now()
			if err := s.park(ctx, idle); err != nil {
				return err
			}
			deadline = deadline.Add(time.Since(parked))
			continue
		}
		if step != nil {
			if err := step(ctx); err != nil {
				return err
			}
		}
		if err := sleep(ctx, min(remaining, s.c.cfg.Timing.Poll)); err != nil {
			return canceled(err)
		}
	}
}

// park de-energizes with idle and blocks until the robot is enabled again.
func (s *session) park(ctx context.Context, idle func(context.Context) error) error {
	if idle != nil {
		if err := idle(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn().Err(err).Msg("de-energize on disable")
		}
	}
	s.log.Info().Stringer("phase", s.phase()).Msg("robot disabled, session parked")
	s.c.emit(Event{Kind: EventParked, Domain: s.c.release.Name(), Op: s.id, Phase: s.phase()})
	for !s.c.hw.Enabler.Enabled() {
		if err := sleep(ctx, s.c.cfg.Timing.Poll); err != nil {
			return canceled(err)
		}
	}
	s.log.Info().Stringer("phase", s.phase()).Msg("robot enabled, session resumed")
	s.c.emit(Event{Kind: EventResumed, Domain: s.c.release.Name(), Op: s.id, Phase: s.phase()})
	return nil
}

func (s *session) fire(ctx context.Context) error {
	return s.c.hw.Release.Set(ctx, fireDirection)
}

func (s *session) releaseOff(ctx context.Context) error {
	return s.c.hw.Release.Set(ctx, robot.RelayOff)
}

// finish leaves the actuators de-energized after a failed session and
// clears the intake suspend and arm flags. The caller releases the release
// domain last.
func (s *session) finish(err error) {
	if err != nil {
		ctx := context.Background()
		cerr := multierr.Combine(s.releaseOff(ctx), s.c.loader.Stop(ctx))
		if s.armLease != nil {
			cerr = multierr.Append(cerr, s.c.armCtl.Brake(ctx))
		}
		if cerr != nil {
			s.log.Error().Err(cerr).Msg("de-energize after abort")
		}
		s.log.Warn().Err(err).Stringer("phase", s.phase()).Msg("release session aborted")
	} else {
		s.log.Info().Msg("release session done")
	}
	s.c.suspend.Store(false)
	if s.armLease != nil {
		s.armLease.Release()
		s.c.exited(s.c.arm, s.id, err)
	}
}

func canceled(err error) error {
	return fmt.Errorf("release: %w: %w", ErrCanceled, err)
}
