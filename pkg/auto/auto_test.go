package auto

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gwillem/sparky/pkg/logging"
	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/shooter"
	"github.com/gwillem/sparky/pkg/sim"
)

func TestDelayFor(t *testing.T) {
	tests := []struct {
		switches [3]bool
		want     time.Duration
	}{
		{[3]bool{}, 0},
		{[3]bool{true, false, false}, 3 * time.Second},
		{[3]bool{false, true, false}, 5 * time.Second},
		{[3]bool{false, false, true}, 7 * time.Second},
		{[3]bool{false, true, true}, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := DelayFor(tt.switches); got != tt.want {
			t.Errorf("DelayFor(%v) = %v, want %v", tt.switches, got, tt.want)
		}
	}
}

func newRoutine(t *testing.T, plant *sim.Plant) (*Routine, *shooter.Coordinator) {
	t.Helper()
	tension := robot.NewTension(plant.Encoder(), 75)
	tension.Zero()

	cfg := shooter.DefaultConfig()
	cfg.Timing.Poll = time.Millisecond
	cfg.Timing.TensionPoll = time.Millisecond
	cfg.Timing.ActuatorSettle = time.Millisecond
	cfg.Timing.MechanicalSettle = time.Millisecond
	cfg.Timing.RefeedDwell = time.Millisecond
	cfg.Logger = logging.Test(t)
	coord, err := shooter.New(shooter.Hardware{
		Arm:     plant.Motor(robot.ArmMotor),
		Intake:  plant.Motor(robot.IntakeMotor),
		Feeder:  plant.Motor(robot.FeederMotor),
		Release: plant.Relay(),
		Sensors: plant,
		Tension: tension,
		Enabler: plant,
	}, cfg)
	if err != nil {
		t.Fatalf("shooter.New() error = %v", err)
	}
	t.Cleanup(func() { _ = coord.Close() })

	r, err := New(Config{Coordinator: coord, Tension: tension, Target: 190, Logger: logging.Test(t)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, coord
}

// armed counts load writes that brought the arm to the launch tension.
func armed(plant *sim.Plant) int {
	n := 0
	for _, w := range plant.ArmWrites() {
		if w.Output < 0 && w.Output != -0.06 && w.Tension == 190 {
			n++
		}
	}
	return n
}

func TestRunFiresTwice(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	plant.SetBallAtShooter(true)
	r, _ := newRoutine(t, plant)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	fires := 0
	for _, v := range plant.RelayWrites() {
		if v == robot.RelayOff {
			fires++
		}
	}
	if fires != 2 {
		t.Errorf("release actuated %d times, want 2", fires)
	}

	if n := armed(plant); n != 2 {
		t.Errorf("arm loaded to 190 %d times, want 2", n)
	}
}

func TestRunSecondShotIgnoresInterlock(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	plant.SetBallAtShooter(true)
	r, coord := newRoutine(t, plant)

	// The ball leaves with the first shot and nothing reloads it.
	go func() {
		for coord.Phase() < shooter.PhaseSettle {
			time.Sleep(100 * time.Microsecond)
		}
		plant.SetBallAtShooter(false)
	}()

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := armed(plant); n != 2 {
		t.Errorf("arm loaded to 190 %d times, want 2", n)
	}
}

func TestRunDisabled(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	plant.SetBallAtShooter(true)
	plant.SetEnabled(false)
	r, _ := newRoutine(t, plant)

	err := r.Run(context.Background())
	if !errors.Is(err, shooter.ErrDisabled) {
		t.Fatalf("Run() error = %v, want ErrDisabled", err)
	}
}

func TestRunCanceledDuringDelay(t *testing.T) {
	plant := sim.New(sim.DefaultOptions())
	r, _ := newRoutine(t, plant)
	r.delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
