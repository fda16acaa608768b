package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/shooter"
)

type RunCommand struct {
	LoopOptions
}

const runHelp = "w/s coarse load/unload  e/d fine  1-4 presets  z zero  v override  i/o/p intake  space fire  a auto  q quit"

func (c *RunCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "No configuration found (%v). Run 'sparky setup' first.\n", err)
		os.Exit(1)
	}
	if cfg.Hardware.Port == "" {
		fmt.Fprintln(os.Stderr, "Shooter bus not configured. Run 'sparky setup' first.")
		os.Exit(1)
	}
	if !cfg.Hardware.IsCalibrated() {
		fmt.Fprintln(os.Stderr, "Servo IDs not configured. Run 'sparky setup' first.")
		os.Exit(1)
	}
	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	log, closeLog, err := openLog(c.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arm, err := robot.NewArm(ctx, cfg.Hardware.Port, cfg.Hardware.Calibration, log)
	if err != nil {
		return fmt.Errorf("open shooter bus: %w", err)
	}
	defer arm.Close()

	panel, err := robot.NewPanel(cfg.Hardware.Pins)
	if err != nil {
		return fmt.Errorf("open panel: %w", err)
	}
	defer panel.Close()

	reg := prometheus.NewRegistry()
	tension := robot.NewTension(arm.Encoder(), cfg.Shooter.ZeroedThreshold)
	loop, err := newShooterLoop(cfg, shooter.Hardware{
		Arm:     arm.Motor(robot.ArmMotor),
		Intake:  arm.Motor(robot.IntakeMotor),
		Feeder:  arm.Motor(robot.FeederMotor),
		Release: panel,
		Sensors: panel,
		Enabler: panel,
	}, tension, arm, c.LoopOptions, log, reg)
	if err != nil {
		return err
	}
	loop.keys.extra = panel.Override
	serveMetrics(ctx, c.MetricsAddr, reg, log)

	onKey := func(key string) {
		if key == "a" {
			loop.startAuto(ctx, c.AutoDelay)
		}
	}
	return loop.run(ctx, "Sparky", runHelp, onKey)
}
