package robot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// readTimeout bounds a single spool position read.
const readTimeout = 50 * time.Millisecond

// Arm is the servo bus driving the arm spool and both conveyor stages.
// All three servos run in velocity (wheel) mode.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	servos      map[MotorName]*feetech.Servo
	calibration Calibration
	log         zerolog.Logger

	mu         sync.Mutex
	spool      unwrap
	count      int
	failing    bool
	readErrors int
}

// NewArm opens the bus and switches every servo to velocity mode.
func NewArm(ctx context.Context, port string, cal Calibration, log zerolog.Logger) (*Arm, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	a := &Arm{
		bus:         bus,
		group:       feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...),
		servos:      make(map[MotorName]*feetech.Servo, len(cal)),
		calibration: cal,
		log:         log.With().Str("component", "bus").Logger(),
	}
	for _, name := range AllMotors() {
		a.servos[name] = feetech.NewServo(bus, cal[name].ID, nil)
	}

	// Torque must be off to change the operating mode
	if err := a.group.DisableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("disable servos: %w", err)
	}
	for name, s := range a.servos {
		if err := s.SetOperatingMode(ctx, feetech.ModeVelocity); err != nil {
			bus.Close()
			return nil, fmt.Errorf("set %s velocity mode: %w", name, err)
		}
	}
	return a, nil
}

// Close stops all servos and closes the bus connection.
func (a *Arm) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var err error
	for _, name := range AllMotors() {
		err = multierr.Append(err, a.Motor(name).Set(ctx, 0))
	}
	return multierr.Combine(err, a.group.DisableAll(ctx), a.bus.Close())
}

// Enable enables torque on all servos.
func (a *Arm) Enable(ctx context.Context) error {
	return a.group.EnableAll(ctx)
}

// Disable disables torque on all servos.
func (a *Arm) Disable(ctx context.Context) error {
	return a.group.DisableAll(ctx)
}

// Motor returns the named motor.
func (a *Arm) Motor(name MotorName) Motor {
	return servoMotor{servo: a.servos[name], cal: a.calibration[name], name: name}
}

// Encoder returns the spool tension encoder.
func (a *Arm) Encoder() Encoder {
	return spoolEncoder{a}
}

// ReadTension samples the spool servo and returns the tension count.
// On a read error the last known count is returned with the error.
func (a *Arm) ReadTension(ctx context.Context) (int, error) {
	raw, err := a.servos[ArmMotor].Position(ctx)
	return a.record(raw, err)
}

// ReadErrors returns how many spool reads have failed.
func (a *Arm) ReadErrors() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readErrors
}

// record folds one spool read into the count. A run of failed reads is
// logged once when it starts and once when it ends.
func (a *Arm) record(raw int, err error) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.readErrors++
		if !a.failing {
			a.failing = true
			a.log.Warn().Err(err).Int("tension", a.count).Msg("spool read failed, holding last tension")
		}
		return a.count, fmt.Errorf("read spool position: %w", err)
	}
	if a.failing {
		a.failing = false
		a.log.Info().Int("failed_reads", a.readErrors).Msg("spool reads recovered")
	}
	a.count = a.calibration[ArmMotor].Counts(a.spool.update(raw))
	return a.count, nil
}

type servoMotor struct {
	servo *feetech.Servo
	cal   MotorCalibration
	name  MotorName
}

func (m servoMotor) Set(ctx context.Context, output float64) error {
	if err := m.servo.SetVelocity(ctx, m.cal.Velocity(output)); err != nil {
		return fmt.Errorf("set %s velocity: %w", m.name, err)
	}
	return nil
}

type spoolEncoder struct{ a *Arm }

func (e spoolEncoder) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()
	// ReadTension logs and counts failures; Count reports the held value.
	n, _ := e.a.ReadTension(ctx)
	return n
}

func (e spoolEncoder) Reset() {
	e.a.mu.Lock()
	defer e.a.mu.Unlock()
	e.a.spool.reset()
	e.a.count = 0
}
