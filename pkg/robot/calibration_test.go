package robot

import (
	"math"
	"testing"
)

func TestMotorCalibration_Velocity(t *testing.T) {
	cal := MotorCalibration{MaxVelocity: 3000}

	tests := []struct {
		output   float64
		expected int
	}{
		{-1.0, -3000},
		{1.0, 3000},
		{0.0, 0},
		{-0.5, -1500},
		{0.06, 180},
		{2.0, 3000}, // clamped
	}

	for _, tt := range tests {
		got := cal.Velocity(tt.output)
		if got != tt.expected {
			t.Errorf("Velocity(%f) = %d, want %d", tt.output, got, tt.expected)
		}
	}
}

func TestMotorCalibration_DriveModeInverts(t *testing.T) {
	cal := MotorCalibration{MaxVelocity: 1000, DriveMode: 1}

	if got := cal.Velocity(0.5); got != -500 {
		t.Errorf("Velocity(0.5) = %d, want -500", got)
	}
	if got := cal.Output(-500); math.Abs(got-0.5) > 0.001 {
		t.Errorf("Output(-500) = %f, want 0.5", got)
	}
	if got := cal.Counts(-400); got != 400 {
		t.Errorf("Counts(-400) = %d, want 400", got)
	}

	cal.StepsPerCount = 100
	if got := cal.Counts(-400); got != 4 {
		t.Errorf("Counts(-400) with 100 steps per count = %d, want 4", got)
	}
}

func TestMotorCalibration_RoundTrip(t *testing.T) {
	cal := MotorCalibration{MaxVelocity: 3400}

	for out := -1.0; out <= 1.0; out += 0.1 {
		back := cal.Output(cal.Velocity(out))
		if math.Abs(back-out) > 0.001 {
			t.Errorf("Round-trip failed: %f -> %d -> %f", out, cal.Velocity(out), back)
		}
	}
}

func TestCalibration_MotorIDs(t *testing.T) {
	cal := Calibration{
		FeederMotor: MotorCalibration{ID: 3},
		ArmMotor:    MotorCalibration{ID: 1},
		IntakeMotor: MotorCalibration{ID: 2},
	}

	ids := cal.MotorIDs()
	expected := []int{1, 2, 3}

	if len(ids) != len(expected) {
		t.Fatalf("MotorIDs returned %d IDs, want %d", len(ids), len(expected))
	}

	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("MotorIDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}

func TestCalibration_ByID(t *testing.T) {
	cal := Calibration{
		ArmMotor:    MotorCalibration{ID: 1, StepsPerCount: 1024},
		FeederMotor: MotorCalibration{ID: 3, MaxVelocity: 400},
	}

	name, mc, ok := cal.ByID(1)
	if !ok {
		t.Fatal("ByID(1) returned false")
	}
	if name != ArmMotor {
		t.Errorf("ByID(1) returned name %s, want arm", name)
	}
	if mc.StepsPerCount != 1024 {
		t.Errorf("ByID(1) returned wrong calibration: %+v", mc)
	}

	_, _, ok = cal.ByID(99)
	if ok {
		t.Error("ByID(99) should return false")
	}
}

func TestCalibration_Validate(t *testing.T) {
	if err := DefaultCalibration().Validate(); err != nil {
		t.Fatalf("default calibration invalid: %v", err)
	}

	dup := DefaultCalibration()
	dup[FeederMotor] = MotorCalibration{ID: 1}
	if err := dup.Validate(); err == nil {
		t.Error("duplicate servo id should fail validation")
	}

	still := DefaultCalibration()
	intake := still[IntakeMotor]
	intake.MaxVelocity = 0
	still[IntakeMotor] = intake
	if err := still.Validate(); err == nil {
		t.Error("zero max velocity should fail validation")
	}

	missing := DefaultCalibration()
	delete(missing, IntakeMotor)
	if err := missing.Validate(); err == nil {
		t.Error("missing motor should fail validation")
	}
}

func TestUnwrap(t *testing.T) {
	var u unwrap

	steps := []struct {
		raw  int
		want int
	}{
		{4000, 0},     // first reading sets the origin
		{4090, 90},    // forward
		{100, 196},    // wrapped forward past 4095
		{4000, 0},     // wrapped backward past 0
		{3000, -1000}, // plain backward
	}
	for _, s := range steps {
		if got := u.update(s.raw); got != s.want {
			t.Errorf("update(%d) = %d, want %d", s.raw, got, s.want)
		}
	}

	u.reset()
	if got := u.update(3100); got != 100 {
		t.Errorf("after reset update(3100) = %d, want 100", got)
	}
}
