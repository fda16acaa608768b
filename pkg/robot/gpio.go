package robot

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// Panel is the GPIO side of the robot: the loader presence sensors, the
// release trigger, the enable and override switches and the release relay.
type Panel struct {
	shooter, middle, top, trigger gpio.PinIn
	enable, override              gpio.PinIn
	releaseFwd, releaseRev        gpio.PinOut
	activeLow                     bool

	mu sync.Mutex
}

var hostOnce = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// NewPanel initializes the host drivers and claims the configured pins.
func NewPanel(pins PinConfig) (*Panel, error) {
	if err := hostOnce(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}

	p := &Panel{activeLow: pins.ActiveLow}
	pull := gpio.PullDown
	if pins.ActiveLow {
		pull = gpio.PullUp
	}

	inputs := []struct {
		name string
		dst  *gpio.PinIn
	}{
		{pins.BallAtShooter, &p.shooter},
		{pins.BallAtMiddle, &p.middle},
		{pins.BallAtTop, &p.top},
		{pins.ReleaseRequest, &p.trigger},
		{pins.Enable, &p.enable},
		{pins.Override, &p.override},
	}
	for _, in := range inputs {
		pin := gpioreg.ByName(in.name)
		if pin == nil {
			return nil, fmt.Errorf("pin %q not found", in.name)
		}
		if err := pin.In(pull, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("configure input %s: %w", in.name, err)
		}
		*in.dst = pin
	}

	outputs := []struct {
		name string
		dst  *gpio.PinOut
	}{
		{pins.ReleaseForward, &p.releaseFwd},
		{pins.ReleaseReverse, &p.releaseRev},
	}
	for _, out := range outputs {
		pin := gpioreg.ByName(out.name)
		if pin == nil {
			return nil, fmt.Errorf("pin %q not found", out.name)
		}
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configure output %s: %w", out.name, err)
		}
		*out.dst = pin
	}
	return p, nil
}

func (p *Panel) read(pin gpio.PinIn) bool {
	return (pin.Read() == gpio.High) != p.activeLow
}

// BallAtShooter implements Sensors.
func (p *Panel) BallAtShooter() bool { return p.read(p.shooter) }

// BallAtMiddle implements Sensors.
func (p *Panel) BallAtMiddle() bool { return p.read(p.middle) }

// BallAtTop implements Sensors.
func (p *Panel) BallAtTop() bool { return p.read(p.top) }

// ReleaseRequest implements Sensors.
func (p *Panel) ReleaseRequest() bool { return p.read(p.trigger) }

// Enabled implements Enabler.
func (p *Panel) Enabled() bool { return p.read(p.enable) }

// Override reports whether the safety override switch is on.
func (p *Panel) Override() bool { return p.read(p.override) }

// Set drives the release relay. Forward and reverse never overlap: both
// legs go low before the new leg is raised.
func (p *Panel) Set(ctx context.Context, v RelayValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := multierr.Combine(p.releaseFwd.Out(gpio.Low), p.releaseRev.Out(gpio.Low)); err != nil {
		return fmt.Errorf("release off: %w", err)
	}
	switch v {
	case RelayForward:
		return p.releaseFwd.Out(gpio.High)
	case RelayReverse:
		return p.releaseRev.Out(gpio.High)
	}
	return nil
}

// Close de-energizes the release relay.
func (p *Panel) Close() error {
	return p.Set(context.Background(), RelayOff)
}
