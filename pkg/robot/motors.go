// Package robot provides the sensors and actuators of the ball-shooter assembly.
package robot

import "context"

// MotorName identifies a speed-controlled motor in the assembly.
type MotorName string

// Motor names for the shooter assembly.
const (
	ArmMotor    MotorName = "arm"    // spool that tensions the launching arm
	IntakeMotor MotorName = "intake" // lower conveyor stage
	FeederMotor MotorName = "feeder" // upper (pre-fire) conveyor stage
)

// AllMotors returns all motor names in order (matching servo IDs 1-3).
func AllMotors() []MotorName {
	return []MotorName{
		ArmMotor,
		IntakeMotor,
		FeederMotor,
	}
}

// Motor is a bidirectional speed-controlled actuator.
// Output is in the range [-1, 1]; 0 is off.
type Motor interface {
	Set(ctx context.Context, output float64) error
}

// RelayValue is the state of a bidirectional relay.
type RelayValue int

const (
	RelayOff RelayValue = iota
	RelayForward
	RelayReverse
)

func (v RelayValue) String() string {
	switch v {
	case RelayForward:
		return "forward"
	case RelayReverse:
		return "reverse"
	default:
		return "off"
	}
}

// Relay is a bidirectional on/off actuator, such as the release latch.
type Relay interface {
	Set(ctx context.Context, v RelayValue) error
}

// Drive is the drivetrain as seen by the shooter: it only needs to be held still.
type Drive interface {
	Stop(ctx context.Context) error
}
