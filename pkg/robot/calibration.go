package robot

import (
	"fmt"
	"math"
)

// stepsPerTurn is the resolution of a feetech STS servo's position sensor.
const stepsPerTurn = 4096

// MotorCalibration holds calibration data for a single servo.
type MotorCalibration struct {
	ID          int `toml:"id"`
	DriveMode   int `toml:"drive_mode"`   // 1 inverts the direction
	MaxVelocity int `toml:"max_velocity"` // servo velocity units at output 1.0
	// StepsPerCount converts spool servo steps to tension counts.
	// Only meaningful for the arm motor.
	StepsPerCount int `toml:"steps_per_count,omitempty"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// DefaultCalibration returns a calibration with servo IDs 1-3.
func DefaultCalibration() Calibration {
	cal := make(Calibration, 3)
	for i, name := range AllMotors() {
		cal[name] = MotorCalibration{ID: i + 1, MaxVelocity: 3400}
	}
	arm := cal[ArmMotor]
	arm.StepsPerCount = stepsPerTurn / 4
	cal[ArmMotor] = arm
	return cal
}

// Velocity converts a motor output in [-1, 1] to a servo velocity.
func (c MotorCalibration) Velocity(output float64) int {
	output = math.Max(-1, math.Min(1, output))
	if c.DriveMode == 1 {
		output = -output
	}
	return int(math.Round(output * float64(c.MaxVelocity)))
}

// Output converts a servo velocity back to a motor output in [-1, 1].
func (c MotorCalibration) Output(velocity int) float64 {
	if c.MaxVelocity == 0 {
		return 0
	}
	out := float64(velocity) / float64(c.MaxVelocity)
	if c.DriveMode == 1 {
		out = -out
	}
	return math.Max(-1, math.Min(1, out))
}

// Counts converts unwrapped spool steps to tension counts.
func (c MotorCalibration) Counts(steps int) int {
	if c.DriveMode == 1 {
		steps = -steps
	}
	if c.StepsPerCount <= 0 {
		return steps
	}
	return steps / c.StepsPerCount
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// ByID returns motor name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (MotorName, MotorCalibration, bool) {
	for name, mc := range c {
		if mc.ID == id {
			return name, mc, true
		}
	}
	return "", MotorCalibration{}, false
}

// Validate checks that every motor is present with a unique ID.
func (c Calibration) Validate() error {
	seen := make(map[int]MotorName, len(c))
	for _, name := range AllMotors() {
		mc, ok := c[name]
		if !ok {
			return fmt.Errorf("motor %s not calibrated", name)
		}
		if mc.MaxVelocity <= 0 {
			return fmt.Errorf("motor %s max_velocity %d must be positive", name, mc.MaxVelocity)
		}
		if other, dup := seen[mc.ID]; dup {
			return fmt.Errorf("motor %s shares servo id %d with %s", name, mc.ID, other)
		}
		seen[mc.ID] = name
	}
	return nil
}

// unwrap tracks a single-turn position sensor across turns.
type unwrap struct {
	last  int
	steps int
	init  bool
}

// update feeds a raw reading in [0, stepsPerTurn) and returns the total
// steps travelled since the last reset. Jumps larger than half a turn are
// taken as a wrap.
func (u *unwrap) update(raw int) int {
	if !u.init {
		u.last = raw
		u.init = true
		return u.steps
	}
	d := raw - u.last
	switch {
	case d > stepsPerTurn/2:
		d -= stepsPerTurn
	case d < -stepsPerTurn/2:
		d += stepsPerTurn
	}
	u.steps += d
	u.last = raw
	return u.steps
}

func (u *unwrap) reset() {
	u.steps = 0
}
