package shooter

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/sim"
)

func TestNewValidatesHardware(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	_, err := New(Hardware{Arm: plant.Motor(robot.ArmMotor)}, DefaultConfig())
	if err == nil {
		t.Fatal("New() with missing hardware succeeded")
	}
}

func TestFireSession(t *testing.T) {
	r := newRig(t, sim.DefaultOptions(), nil)
	r.plant.SetTension(160)
	r.plant.SetBallAtTop(true)
	r.plant.PulseReleaseRequest(30 * time.Millisecond)

	h, ok := r.coord.RequestFire(r.tension.Get())
	if !ok {
		t.Fatal("RequestFire() refused on an idle coordinator")
	}
	if !r.coord.ReleaseInProgress() {
		t.Error("ReleaseInProgress() = false right after an accepted request")
	}

	var sawSuspend atomic.Bool
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			if r.coord.IntakeSuspended() {
				sawSuspend.Store(true)
			}
			time.Sleep(100 * time.Microsecond)
		}
	}()
	err := waitHandle(t, h, 5*time.Second)
	close(stop)
	if err != nil {
		t.Fatalf("session error = %v", err)
	}

	if !sawSuspend.Load() {
		t.Error("intake was never suspended during the session")
	}
	if r.coord.ReleaseInProgress() || r.coord.ArmMoveInProgress() || r.coord.IntakeSuspended() {
		t.Errorf("flags after session: release=%v arm=%v suspended=%v, want all false",
			r.coord.ReleaseInProgress(), r.coord.ArmMoveInProgress(), r.coord.IntakeSuspended())
	}
	if p := r.coord.Phase(); p != PhaseIdle {
		t.Errorf("Phase() = %v, want idle", p)
	}

	relay := r.plant.RelayWrites()
	if len(relay) == 0 || relay[0] != robot.RelayReverse {
		t.Fatalf("relay writes = %v, want reverse first", relay)
	}
	firstOff := -1
	for i, v := range relay {
		if v == robot.RelayOff && firstOff < 0 {
			firstOff = i
		}
		if v == robot.RelayReverse && firstOff >= 0 {
			t.Errorf("relay reversed again at write %d after it was turned off", i)
		}
	}
	if firstOff < 0 {
		t.Error("relay never turned off")
	}

	snap := r.plant.Snapshot()
	if snap.Top {
		t.Error("refeed left a ball at the top sensor")
	}
	if snap.Feeder != 0 || snap.Intake != 0 {
		t.Errorf("conveyors = %v, %v after session, want stopped", snap.Intake, snap.Feeder)
	}
	if snap.Arm != -0.06 {
		t.Errorf("arm output = %v, want brake", snap.Arm)
	}
	// 160 down to 0 at full speed, then back up in coarse steps of 10.
	if snap.Tension != 130 {
		t.Errorf("tension = %d, want 130 (first coarse step at or past 125)", snap.Tension)
	}
	rearm := false
	for _, w := range r.plant.ArmWrites() {
		if w.Output == 1.0 {
			rearm = true
		}
		if w.Output > 0 && w.Output != 1.0 {
			t.Errorf("unload write %v, rearm must use full speed", w.Output)
		}
	}
	if !rearm {
		t.Error("no full speed rearm stroke")
	}

	if n := testutil.ToFloat64(r.metrics.sessionTotal.WithLabelValues("ok")); n != 1 {
		t.Errorf("ok sessions = %v, want 1", n)
	}
}

func TestFireSessionPhaseOrder(t *testing.T) {
	r := newRig(t, sim.DefaultOptions(), nil)
	if err := r.coord.Fire(context.Background(), 0); err != nil {
		t.Fatalf("Fire() error = %v", err)
	}

	want := []Phase{PhaseActuate, PhaseSettle, PhaseSuspend, PhaseRearm, PhaseSlack, PhaseRefeed, PhaseReturn, PhaseRelease}
	var got []Phase
	var armEntered, armExited bool
	for {
		select {
		case ev := <-r.coord.Events():
			switch {
			case ev.Kind == EventPhase:
				got = append(got, ev.Phase)
			case ev.Kind == EventEntered && ev.Domain == "arm":
				armEntered = true
			case ev.Kind == EventExited && ev.Domain == "arm":
				armExited = true
			}
			continue
		default:
		}
		break
	}
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("phase %d = %v, want %v", i, got[i], want[i])
		}
	}
	if !armEntered || !armExited {
		t.Errorf("arm domain entered=%v exited=%v, want both", armEntered, armExited)
	}
}

func TestRequestFireTwice(t *testing.T) {
	r := newRig(t, sim.DefaultOptions(), nil)
	r.plant.SetReleaseRequest(true)

	h, ok := r.coord.RequestFire(0)
	if !ok {
		t.Fatal("first RequestFire() refused")
	}
	if _, ok := r.coord.RequestFire(0); ok {
		t.Error("second RequestFire() accepted while a session is active")
	}
	if err := r.coord.Fire(context.Background(), 0); !errors.Is(err, ErrBusy) {
		t.Errorf("Fire() error = %v, want ErrBusy", err)
	}

	r.plant.SetReleaseRequest(false)
	if err := waitHandle(t, h, 5*time.Second); err != nil {
		t.Fatalf("session error = %v", err)
	}
	if n := testutil.ToFloat64(r.metrics.sessionTotal.WithLabelValues("ok")); n != 1 {
		t.Errorf("sessions = %v, want exactly 1", n)
	}
	if n := testutil.ToFloat64(r.metrics.dropTotal.WithLabelValues("fire")); n != 1 {
		t.Errorf("dropped fire requests = %v, want 1", n)
	}
}

func TestFireSessionReturnPolicy(t *testing.T) {
	tests := []struct {
		policy ReturnPolicy
		want   int
	}{
		{ReturnToPreset, 130},
		{ReturnToCaptured, 60},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			r := newRig(t, sim.DefaultOptions(), func(c *Config) { c.ReturnPolicy = tt.policy })
			r.plant.SetTension(160)
			if err := r.coord.Fire(context.Background(), 60); err != nil {
				t.Fatalf("Fire() error = %v", err)
			}
			if got := r.tension.Get(); got != tt.want {
				t.Errorf("tension = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFireSessionParksWhileDisabled(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.Gain = 1 // slow spool, the rearm stroke takes a while
	r := newRig(t, opts, nil)
	r.plant.SetTension(300)

	h, ok := r.coord.RequestFire(300)
	if !ok {
		t.Fatal("RequestFire() refused")
	}
	waitFor(t, 5*time.Second, "rearm phase", func() bool {
		return r.coord.Phase() == PhaseRearm && r.tension.Get() < 290
	})

	r.plant.SetEnabled(false)
	time.Sleep(20 * time.Millisecond)

	snap := r.plant.Snapshot()
	if snap.Arm != -0.06 {
		t.Errorf("arm output while disabled = %v, want brake", snap.Arm)
	}
	if !r.coord.ArmMoveInProgress() || !r.coord.ReleaseInProgress() || !r.coord.IntakeSuspended() {
		t.Error("disable cleared the session flags, want them held")
	}
	parked := r.tension.Get()
	time.Sleep(20 * time.Millisecond)
	if got := r.tension.Get(); got != parked {
		t.Errorf("tension moved while parked: %d -> %d", parked, got)
	}
	if p := r.coord.Phase(); p != PhaseRearm {
		t.Errorf("Phase() while parked = %v, want rearm", p)
	}

	r.plant.SetEnabled(true)
	if err := waitHandle(t, h, 10*time.Second); err != nil {
		t.Fatalf("session error after re-enable = %v", err)
	}
	if r.coord.ArmMoveInProgress() || r.coord.ReleaseInProgress() || r.coord.IntakeSuspended() {
		t.Error("flags still set after the resumed session finished")
	}
	if got := r.tension.Get(); got < 125 {
		t.Errorf("tension = %d, want the session to have returned to the preset", got)
	}
}

func TestFireSessionCancel(t *testing.T) {
	r := newRig(t, sim.DefaultOptions(), nil)
	r.plant.SetReleaseRequest(true)

	h, ok := r.coord.RequestFire(0)
	if !ok {
		t.Fatal("RequestFire() refused")
	}
	waitFor(t, time.Second, "release actuator", func() bool {
		return r.plant.Snapshot().Release == robot.RelayReverse
	})

	err := h.Stop()
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("Stop() error = %v, want ErrCanceled", err)
	}
	if r.plant.Snapshot().Release != robot.RelayOff {
		t.Error("release actuator left energized after cancel")
	}
	if r.coord.ReleaseInProgress() || r.coord.IntakeSuspended() {
		t.Error("flags still set after cancel")
	}
	if n := testutil.ToFloat64(r.metrics.sessionTotal.WithLabelValues("canceled")); n != 1 {
		t.Errorf("canceled sessions = %v, want 1", n)
	}
}

func TestFireSessionStuckSensorTimesOut(t *testing.T) {
	opts := sim.DefaultOptions()
	opts.FeedToClear = 1 << 30
	r := newRig(t, opts, func(c *Config) { c.Timing.WaitTimeout = 30 * time.Millisecond })
	r.plant.SetBallAtTop(true)

	err := r.coord.Fire(context.Background(), 0)
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Fire() error = %v, want *TimeoutError", err)
	}
	if te.Phase != PhaseRefeed {
		t.Errorf("timed out in %v, want refeed", te.Phase)
	}
	snap := r.plant.Snapshot()
	if snap.Feeder != 0 || snap.Release != robot.RelayOff || snap.Arm != -0.06 {
		t.Errorf("after timeout feeder=%v release=%v arm=%v, want de-energized", snap.Feeder, snap.Release, snap.Arm)
	}
	if r.coord.ArmMoveInProgress() || r.coord.ReleaseInProgress() || r.coord.IntakeSuspended() {
		t.Error("flags still set after timeout")
	}
	if n := testutil.ToFloat64(r.metrics.sessionTotal.WithLabelValues("timeout")); n != 1 {
		t.Errorf("timed out sessions = %v, want 1", n)
	}
}

func TestRequestArmMove(t *testing.T) {
	r := newRig(t, sim.Options{Gain: 1, Deadband: 0.1, FeedToClear: 1}, nil)

	h, ok := r.coord.RequestArmMove(Target{Position: 100, Speed: 1.0})
	if !ok {
		t.Fatal("RequestArmMove() refused on a free arm")
	}
	if !r.coord.ArmMoveInProgress() {
		t.Error("ArmMoveInProgress() = false right after an accepted request")
	}
	if _, ok := r.coord.RequestArmMove(Target{Position: 0}); ok {
		t.Error("second RequestArmMove() accepted while the arm is held")
	}
	if err := waitHandle(t, h, 5*time.Second); err != nil {
		t.Fatalf("move error = %v", err)
	}
	if r.coord.ArmMoveInProgress() {
		t.Error("ArmMoveInProgress() = true after the move finished")
	}
	for _, w := range r.plant.ArmWrites() {
		if w.Output < -0.5 {
			t.Fatalf("background move wrote %v, want at most coarse speed", w.Output)
		}
	}
	if got := r.tension.Get(); got != 100 {
		t.Errorf("tension = %d, want 100", got)
	}
}

func TestRequestArmMoveRequiresBall(t *testing.T) {
	r := newRig(t, sim.DefaultOptions(), nil)
	r.plant.SetBallAtShooter(false)

	h, ok := r.coord.RequestArmMove(Target{Position: 100, Speed: 0.5})
	if !ok {
		t.Fatal("RequestArmMove() refused")
	}
	if err := waitHandle(t, h, time.Second); err != nil {
		t.Fatalf("move error = %v", err)
	}
	if got := r.tension.Get(); got != 0 {
		t.Errorf("tension = %d, want the load deferred at 0", got)
	}
}

func TestRequestArmMoveDisabled(t *testing.T) {
	r := newRig(t, sim.Options{Gain: 1, Deadband: 0.1, FeedToClear: 1}, nil)

	h, ok := r.coord.RequestArmMove(Target{Position: 1000, Speed: 0.5})
	if !ok {
		t.Fatal("RequestArmMove() refused")
	}
	waitFor(t, time.Second, "arm moving", func() bool { return r.tension.Get() > 5 })
	r.plant.SetEnabled(false)

	if err := waitHandle(t, h, time.Second); !errors.Is(err, ErrDisabled) {
		t.Fatalf("move error = %v, want ErrDisabled", err)
	}
	if r.coord.ArmMoveInProgress() {
		t.Error("arm flag held after the move aborted")
	}
	if r.plant.Snapshot().Arm != -0.06 {
		t.Error("arm not braked after disable")
	}
}

func TestMoveArmBusy(t *testing.T) {
	r := newRig(t, sim.Options{Gain: 1, Deadband: 0.1, FeedToClear: 1}, nil)

	h, ok := r.coord.RequestArmMove(Target{Position: 1000, Speed: 0.5})
	if !ok {
		t.Fatal("RequestArmMove() refused")
	}
	err := r.coord.MoveArm(context.Background(), Target{Position: 0, Speed: 0.5})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("MoveArm() error = %v, want ErrBusy", err)
	}
	if err := h.Stop(); !errors.Is(err, ErrCanceled) {
		t.Errorf("Stop() error = %v, want ErrCanceled", err)
	}
	if err := r.coord.MoveArm(context.Background(), Target{Position: r.tension.Get(), Speed: 0.5}); err != nil {
		t.Errorf("MoveArm() after stop error = %v", err)
	}
}

func TestManualWritesYieldToOwners(t *testing.T) {
	r := newRig(t, sim.Options{Gain: 1, Deadband: 0.1, FeedToClear: 1}, nil)
	ctx := context.Background()

	if ok, err := r.coord.CommandArm(ctx, Unload, 0.5); !ok || err != nil {
		t.Fatalf("CommandArm() on a free arm = %v, %v", ok, err)
	}
	if _, ok, err := tickLoader(r, IntentLoad); !ok || err != nil {
		t.Fatalf("TickLoader() on a free loader = %v, %v", ok, err)
	}

	armLease, _ := r.coord.ArmDomain().TryEnter(100)
	relLease, _ := r.coord.ReleaseDomain().TryEnter(101)
	r.plant.ClearHistory()
	if ok, _ := r.coord.CommandArm(ctx, Load, 0.5); ok {
		t.Error("CommandArm() wrote while the arm domain was held")
	}
	if _, ok, _ := tickLoader(r, IntentUnload); ok {
		t.Error("TickLoader() ran while the release domain was held")
	}
	if ok, _ := r.coord.StopLoader(ctx); ok {
		t.Error("StopLoader() ran while the release domain was held")
	}
	if n := len(r.plant.ArmWrites()); n != 0 {
		t.Errorf("%d arm writes while held, want 0", n)
	}
	if snap := r.plant.Snapshot(); snap.Intake != 1 || snap.Feeder != 1 {
		t.Errorf("loader changed while held: intake=%v feeder=%v", snap.Intake, snap.Feeder)
	}
	armLease.Release()
	relLease.Release()

	if ok, err := r.coord.StopLoader(ctx); !ok || err != nil {
		t.Errorf("StopLoader() after release = %v, %v", ok, err)
	}
}

func tickLoader(r *rig, intent Intent) (StageState, bool, error) {
	return r.coord.TickLoader(context.Background(), r.tension.Get(), 0, intent)
}

// exclusive wraps a motor or relay and fails the test when two writers are
// inside Set at the same time.
type exclusive struct {
	t      *testing.T
	name   string
	inside atomic.Int32
}

func (e *exclusive) enter() {
	if n := e.inside.Add(1); n > 1 {
		e.t.Errorf("%d concurrent writers on %s", n, e.name)
	}
	time.Sleep(50 * time.Microsecond)
	e.inside.Add(-1)
}

type exclusiveMotor struct {
	*exclusive
	robot.Motor
}

func (m exclusiveMotor) Set(ctx context.Context, v float64) error {
	m.enter()
	return m.Motor.Set(ctx, v)
}

type exclusiveRelay struct {
	*exclusive
	robot.Relay
}

func (r exclusiveRelay) Set(ctx context.Context, v robot.RelayValue) error {
	r.enter()
	return r.Relay.Set(ctx, v)
}

func TestConcurrentRequestsNeverShareActuators(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	plant.SetBallAtShooter(true)
	tension := robot.NewTension(plant.Encoder(), 75)
	cfg := testConfig(t)
	c, err := New(Hardware{
		Arm:     exclusiveMotor{&exclusive{t: t, name: "arm"}, plant.Motor(robot.ArmMotor)},
		Intake:  plant.Motor(robot.IntakeMotor),
		Feeder:  plant.Motor(robot.FeederMotor),
		Release: exclusiveRelay{&exclusive{t: t, name: "release"}, plant.Relay()},
		Sensors: plant,
		Tension: tension,
		Enabler: plant,
	}, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for i := 0; i < 40; i++ {
				var ok bool
				if rng.IntN(2) == 0 {
					_, ok = c.RequestArmMove(Target{Position: rng.IntN(200), Speed: 0.5})
				} else {
					_, ok = c.RequestFire(tension.Get())
				}
				if ok {
					accepted.Add(1)
				}
				time.Sleep(time.Duration(rng.IntN(500)) * time.Microsecond)
			}
		}(uint64(g + 1))
	}
	wg.Wait()
	c.Wait()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if accepted.Load() == 0 {
		t.Error("no request was ever accepted")
	}
	if c.ArmMoveInProgress() || c.ReleaseInProgress() || c.IntakeSuspended() {
		t.Error("flags still set after every operation finished")
	}
}
