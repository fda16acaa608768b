package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/shooter"
	"github.com/gwillem/sparky/pkg/sim"
)

type SimulateCommand struct {
	LoopOptions
	Gain        float64       `long:"gain" default:"2" description:"Tension counts per arm write at full output"`
	FeedToClear int           `long:"feed-to-clear" default:"100" description:"Feeder writes needed to clear the top sensor"`
	Trigger     time.Duration `long:"trigger" default:"200ms" description:"How long the release trigger is held per pulse"`
}

const simHelp = runHelp + "\nsim: b/m/t toggle ball at shooter/middle/top  r pull trigger  n toggle enable"

func (c *SimulateCommand) Execute(args []string) error {
	cfg := robot.DefaultConfig()
	if loaded, err := robot.LoadConfigFrom(opts.Config); err == nil {
		cfg = *loaded
	}

	log, closeLog, err := openLog(c.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plant := sim.New(sim.Options{Gain: c.Gain, Deadband: 0.1, FeedToClear: c.FeedToClear})
	reg := prometheus.NewRegistry()
	tension := robot.NewTension(plant.Encoder(), cfg.Shooter.ZeroedThreshold)
	loop, err := newShooterLoop(&cfg, shooter.Hardware{
		Arm:     plant.Motor(robot.ArmMotor),
		Intake:  plant.Motor(robot.IntakeMotor),
		Feeder:  plant.Motor(robot.FeederMotor),
		Release: plant.Relay(),
		Sensors: plant,
		Enabler: plant,
		Drive:   plant.Drive(),
	}, tension, nil, c.LoopOptions, log, reg)
	if err != nil {
		return err
	}
	serveMetrics(ctx, c.MetricsAddr, reg, log)

	onKey := func(key string) {
		s := plant.Snapshot()
		switch key {
		case "b":
			plant.SetBallAtShooter(!s.Shooter)
		case "m":
			plant.SetBallAtMiddle(!s.Middle)
		case "t":
			plant.SetBallAtTop(!s.Top)
		case "r":
			plant.PulseReleaseRequest(c.Trigger)
		case "n":
			plant.SetEnabled(!s.Enabled)
			log.Info().Bool("enabled", !s.Enabled).Msg("simulated enable switch")
		case "a":
			loop.startAuto(ctx, c.AutoDelay)
		}
	}
	return loop.run(ctx, fmt.Sprintf("Sparky Simulator (gain %.1f)", c.Gain), simHelp, onKey)
}
