// Package sim provides a simulated shooter plant.
//
// The plant is write-driven: the spool tension moves only when the arm motor
// is written, by Gain counts per unit of output per write. That makes arm
// moves deterministic regardless of scheduling.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gwillem/sparky/pkg/robot"
)

// Options configure the plant dynamics.
type Options struct {
	Gain        float64 // tension counts per write at output 1.0
	Deadband    float64 // outputs at or below this magnitude hold the spool
	FeedToClear int     // feeder writes needed to clear the top sensor
}

// DefaultOptions returns dynamics that reach a tension of 190 in 19 coarse
// writes.
func DefaultOptions() Options {
	return Options{Gain: 20, Deadband: 0.1, FeedToClear: 10}
}

// ArmWrite is one recorded arm motor write.
type ArmWrite struct {
	Output  float64
	Tension int // tension after the write
}

// Snapshot is the observable state of the plant.
type Snapshot struct {
	Tension    int
	Arm        float64
	Intake     float64
	Feeder     float64
	Release    robot.RelayValue
	Shooter    bool
	Middle     bool
	Top        bool
	Trigger    bool
	Enabled    bool
	DriveStops int
}

// Plant is a simulated arm, loader, release and panel.
type Plant struct {
	opts Options

	mu         sync.Mutex
	tension    float64
	arm        float64
	intake     float64
	feeder     float64
	release    robot.RelayValue
	shooter    bool
	middle     bool
	top        bool
	trigger    bool
	enabled    bool
	fed        int
	driveStops int
	armLog     []ArmWrite
	relayLog   []robot.RelayValue
}

// New returns an enabled plant with no balls and zero tension.
func New(opts Options) *Plant {
	return &Plant{opts: opts, enabled: true}
}

// Motor returns the named motor.
func (p *Plant) Motor(name robot.MotorName) robot.Motor {
	return motor{p: p, name: name}
}

// Encoder returns the spool encoder.
func (p *Plant) Encoder() robot.Encoder { return encoder{p} }

// Relay returns the release relay.
func (p *Plant) Relay() robot.Relay { return relay{p} }

// Drive returns a drivetrain that counts stop requests.
func (p *Plant) Drive() robot.Drive { return drive{p} }

func (p *Plant) setMotor(name robot.MotorName, out float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case robot.ArmMotor:
		p.arm = out
		if math.Abs(out) > p.opts.Deadband {
			p.tension -= out * p.opts.Gain
		}
		p.armLog = append(p.armLog, ArmWrite{Output: out, Tension: p.count()})
	case robot.IntakeMotor:
		p.intake = out
	case robot.FeederMotor:
		p.feeder = out
		if out > 0 && p.top {
			p.fed++
			if p.fed >= p.opts.FeedToClear {
				p.top = false
				p.fed = 0
			}
		}
	}
}

func (p *Plant) count() int {
	return int(math.Round(p.tension))
}

// BallAtShooter implements robot.Sensors.
func (p *Plant) BallAtShooter() bool { return p.get(&p.shooter) }

// BallAtMiddle implements robot.Sensors.
func (p *Plant) BallAtMiddle() bool { return p.get(&p.middle) }

// BallAtTop implements robot.Sensors.
func (p *Plant) BallAtTop() bool { return p.get(&p.top) }

// ReleaseRequest implements robot.Sensors.
func (p *Plant) ReleaseRequest() bool { return p.get(&p.trigger) }

// Enabled implements robot.Enabler.
func (p *Plant) Enabled() bool { return p.get(&p.enabled) }

func (p *Plant) get(b *bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *b
}

func (p *Plant) set(b *bool, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	*b = v
}

// SetBallAtShooter sets the shooter sensor.
func (p *Plant) SetBallAtShooter(v bool) { p.set(&p.shooter, v) }

// SetBallAtMiddle sets the middle sensor.
func (p *Plant) SetBallAtMiddle(v bool) { p.set(&p.middle, v) }

// SetBallAtTop sets the top sensor.
func (p *Plant) SetBallAtTop(v bool) { p.set(&p.top, v) }

// SetReleaseRequest sets the trigger sensor.
func (p *Plant) SetReleaseRequest(v bool) { p.set(&p.trigger, v) }

// SetEnabled enables or disables the robot.
func (p *Plant) SetEnabled(v bool) { p.set(&p.enabled, v) }

// PulseReleaseRequest holds the trigger down for d.
func (p *Plant) PulseReleaseRequest(d time.Duration) {
	p.SetReleaseRequest(true)
	time.AfterFunc(d, func() { p.SetReleaseRequest(false) })
}

// SetTension forces the spool tension.
func (p *Plant) SetTension(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tension = float64(n)
}

// Snapshot returns the current plant state.
func (p *Plant) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Tension:    p.count(),
		Arm:        p.arm,
		Intake:     p.intake,
		Feeder:     p.feeder,
		Release:    p.release,
		Shooter:    p.shooter,
		Middle:     p.middle,
		Top:        p.top,
		Trigger:    p.trigger,
		Enabled:    p.enabled,
		DriveStops: p.driveStops,
	}
}

// ArmWrites returns a copy of every arm motor write so far.
func (p *Plant) ArmWrites() []ArmWrite {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ArmWrite(nil), p.armLog...)
}

// RelayWrites returns a copy of every relay write so far.
func (p *Plant) RelayWrites() []robot.RelayValue {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]robot.RelayValue(nil), p.relayLog...)
}

// ClearHistory forgets recorded writes.
func (p *Plant) ClearHistory() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armLog = nil
	p.relayLog = nil
}

type motor struct {
	p    *Plant
	name robot.MotorName
}

func (m motor) Set(_ context.Context, out float64) error {
	m.p.setMotor(m.name, out)
	return nil
}

type encoder struct{ p *Plant }

func (e encoder) Count() int {
	e.p.mu.Lock()
	defer e.p.mu.Unlock()
	return e.p.count()
}

func (e encoder) Reset() { e.p.SetTension(0) }

type relay struct{ p *Plant }

func (r relay) Set(_ context.Context, v robot.RelayValue) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	r.p.release = v
	r.p.relayLog = append(r.p.relayLog, v)
	return nil
}

type drive struct{ p *Plant }

func (d drive) Stop(context.Context) error {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	d.p.driveStops++
	return nil
}
