package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/gwillem/sparky/pkg/auto"
	"github.com/gwillem/sparky/pkg/logging"
	"github.com/gwillem/sparky/pkg/robot"
	"github.com/gwillem/sparky/pkg/shooter"
	"github.com/gwillem/sparky/pkg/teleop"
)

// LoopOptions are the flags shared by run and simulate.
type LoopOptions struct {
	Hz          int    `long:"hz" default:"200" description:"Operator loop frequency"`
	MetricsAddr string `long:"metrics-addr" default:":9090" description:"Prometheus listen address, empty to disable"`
	LogFile     string `long:"log-file" default:"sparky.log" description:"Log file while the dashboard runs"`
	AutoDelay   int    `long:"auto-delay" default:"0" choice:"0" choice:"1" choice:"2" choice:"3" description:"Autonomous start delay switch (0 for none)"`
}

// openLog returns a logger writing to path. The dashboard owns the
// terminal, so nothing is logged to stderr while it runs.
func openLog(path string) (zerolog.Logger, func(), error) {
	if path == "" {
		return zerolog.Nop(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	return logging.New("sparky", f), func() { f.Close() }, nil
}

// serveMetrics exposes reg on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
}

// shooterLoop is the control core plus the operator loop around it.
type shooterLoop struct {
	coord   *shooter.Coordinator
	ctrl    *teleop.Controller
	keys    *keyInput
	tension *robot.Tension
	cfg     *robot.Config
	log     zerolog.Logger
	autoRun atomic.Bool
}

func newShooterLoop(cfg *robot.Config, hw shooter.Hardware, tension *robot.Tension, torque teleop.Torquer, lo LoopOptions, log zerolog.Logger, reg *prometheus.Registry) (*shooterLoop, error) {
	scfg, err := shooter.ConfigFrom(cfg.Shooter)
	if err != nil {
		return nil, err
	}
	scfg.Logger = log
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	scfg.Metrics = shooter.NewMetrics(reg)

	hw.Tension = tension
	coord, err := shooter.New(hw, scfg)
	if err != nil {
		return nil, fmt.Errorf("create shooter: %w", err)
	}

	keys := newKeyInput()
	ctrl, err := teleop.NewController(teleop.Config{
		Coordinator: coord,
		Tension:     tension,
		Sensors:     hw.Sensors,
		Enabler:     hw.Enabler,
		Input:       keys,
		Torque:      torque,
		Presets: teleop.Presets{
			Load: cfg.Shooter.LoadPreset,
			Zero: 0,
			High: cfg.Shooter.HighPreset,
		},
		Hz:     lo.Hz,
		Logger: log,
	})
	if err != nil {
		coord.Close()
		return nil, fmt.Errorf("create controller: %w", err)
	}
	return &shooterLoop{coord: coord, ctrl: ctrl, keys: keys, tension: tension, cfg: cfg, log: log}, nil
}

// startAuto runs the autonomous routine in the background unless it is
// already running.
func (l *shooterLoop) startAuto(ctx context.Context, delaySwitch int) {
	if !l.autoRun.CompareAndSwap(false, true) {
		return
	}
	var switches [3]bool
	if delaySwitch > 0 {
		switches[delaySwitch-1] = true
	}
	r, err := auto.New(auto.Config{
		Coordinator: l.coord,
		Tension:     l.tension,
		Target:      l.cfg.Shooter.AutoPreset,
		Delay:       auto.DelayFor(switches),
		Logger:      l.log,
	})
	if err != nil {
		l.autoRun.Store(false)
		l.log.Error().Err(err).Msg("autonomous")
		return
	}
	go func() {
		defer l.autoRun.Store(false)
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Warn().Err(err).Msg("autonomous routine stopped")
			return
		}
		l.log.Info().Msg("autonomous routine done")
	}()
}

// run starts the operator loop and blocks in the dashboard until the user
// quits.
func (l *shooterLoop) run(ctx context.Context, title, help string, onKey func(string)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.ctrl.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.log.Error().Err(err).Msg("controller")
		}
	}()

	model := newDashboard(title, help, l.ctrl, l.keys)
	model.onKey = onKey
	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()

	cancel()
	<-done
	return multierr.Combine(err, l.coord.Close())
}
