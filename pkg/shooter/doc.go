// Package shooter is the control core of the ball-shooter: the arm position
// controller, the loader state machine, the release sequencer and the
// coordinator that lends them the actuators.
//
// # Domains
//
// The arm motor belongs to the arm domain. The release actuator and both
// conveyor stages belong to the release domain. A background operation
// holds a domain for its whole run through a Lease; the manual polling loop
// never takes a lease but must check ArmMoveInProgress and
// ReleaseInProgress before it writes an actuator of that domain.
//
// # Background operations
//
// RequestArmMove and RequestFire start one-shot operations and return a
// Handle, or false when the domain is busy. A dropped request is not an
// error. Handles support Cancel, Wait and Stop (cancel and confirm stopped).
//
// # Disable
//
// A synchronous MoveTo brakes and returns ErrDisabled when the robot is
// disabled. A release session parks at its current poll point with its
// actuators off, keeps its domains and flags, and resumes where it left off
// once the robot is enabled again.
//
// # Bounded waits
//
// Every wait on a sensor is bounded by Timing.WaitTimeout, every move by
// Timing.MoveTimeout. A wait that gives up reports a *TimeoutError, which
// matches ErrTimeout under errors.Is.
package shooter
