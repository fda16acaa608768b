package shooter

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gwillem/sparky/pkg/logging"
	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/sim"
)

type rig struct {
	plant   *sim.Plant
	tension *robot.Tension
	coord   *Coordinator
	metrics *Metrics
}

func testConfig(t *testing.T) Config {
	cfg := DefaultConfig()
	cfg.Timing = Timing{
		Period:           time.Millisecond,
		Poll:             time.Millisecond,
		TensionPoll:      2 * time.Millisecond,
		ActuatorSettle:   3 * time.Millisecond,
		MechanicalSettle: 3 * time.Millisecond,
		RefeedDwell:      5 * time.Millisecond,
		MoveTimeout:      5 * time.Second,
		WaitTimeout:      5 * time.Second,
	}
	cfg.Logger = logging.Test(t)
	return cfg
}

// newRig builds a coordinator over a simulated plant. The plant starts
// enabled with a ball at the shooter and the tension zeroed.
func newRig(t *testing.T, opts sim.Options, mutate func(*Config)) *rig {
	t.Helper()
	plant := sim.New(opts)
	plant.SetBallAtShooter(true)
	tension := robot.NewTension(plant.Encoder(), 75)
	tension.Zero()

	cfg := testConfig(t)
	cfg.Metrics = NewMetrics(prometheus.NewRegistry())
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(Hardware{
		Arm:     plant.Motor(robot.ArmMotor),
		Intake:  plant.Motor(robot.IntakeMotor),
		Feeder:  plant.Motor(robot.FeederMotor),
		Release: plant.Relay(),
		Sensors: plant,
		Tension: tension,
		Enabler: plant,
		Drive:   plant.Drive(),
	}, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return &rig{plant: plant, tension: tension, coord: c, metrics: cfg.Metrics}
}

// waitFor polls cond until it holds or d elapses.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(200 * time.Microsecond)
	}
}

// waitHandle waits for h with a bound so a stuck session fails the test
// instead of hanging it.
func waitHandle(t *testing.T, h *Handle, d time.Duration) error {
	t.Helper()
	select {
	case <-h.Done():
		return h.Err()
	case <-time.After(d):
		t.Fatalf("%s %d did not finish within %v", h.Kind(), h.ID(), d)
		return nil
	}
}

func outputs(ws []sim.ArmWrite) []float64 {
	out := make([]float64, len(ws))
	for i, w := range ws {
		out[i] = w.Output
	}
	return out
}
