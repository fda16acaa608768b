package shooter

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gwillem/sparky/pkg/robot"
)

// ReturnPolicy selects where the arm goes after a release session.
type ReturnPolicy int

const (
	// ReturnToPreset drives the arm to Config.ReadyPreset.
	ReturnToPreset ReturnPolicy = iota
	// ReturnToCaptured drives the arm back to the tension captured when
	// the fire request was accepted.
	ReturnToCaptured
)

func (p ReturnPolicy) String() string {
	if p == ReturnToCaptured {
		return "captured"
	}
	return "preset"
}

// ParseReturnPolicy parses "preset" or "captured". Empty means preset.
func ParseReturnPolicy(s string) (ReturnPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preset":
		return ReturnToPreset, nil
	case "captured":
		return ReturnToCaptured, nil
	}
	return ReturnToPreset, fmt.Errorf("unknown return policy %q", s)
}

// Speeds are motor output magnitudes in (0, 1].
type Speeds struct {
	Brake      float64 // signed constant output that holds the spool
	Coarse     float64
	FineLoad   float64
	FineUnload float64
	Full       float64 // reserved for the rearm stroke
}

// Timing holds every delay and bound used by the control core.
type Timing struct {
	Period           time.Duration // manual polling loop
	Poll             time.Duration // background wait points
	TensionPoll      time.Duration // slack wait after the rearm stroke
	ActuatorSettle   time.Duration
	MechanicalSettle time.Duration
	RefeedDwell      time.Duration
	MoveTimeout      time.Duration // 0 disables the bound
	WaitTimeout      time.Duration // 0 disables the bound
}

// Config tunes the arm controller, the loader and the release sequencer.
type Config struct {
	ZeroedThreshold int
	ReadyPreset     int
	ReturnPolicy    ReturnPolicy
	AntiJamDwell    time.Duration
	Speeds          Speeds
	Timing          Timing

	Logger  zerolog.Logger
	Metrics *Metrics
}

// DefaultConfig returns the tuning from robot.DefaultConfig with logging off.
func DefaultConfig() Config {
	cfg, _ := ConfigFrom(robot.DefaultConfig().Shooter)
	return cfg
}

// ConfigFrom converts the file configuration into a core configuration.
func ConfigFrom(s robot.ShooterConfig) (Config, error) {
	policy, err := ParseReturnPolicy(s.ReturnPolicy)
	if err != nil {
		return Config{}, err
	}
	return Config{
		ZeroedThreshold: s.ZeroedThreshold,
		ReadyPreset:     s.ReadyPreset,
		ReturnPolicy:    policy,
		AntiJamDwell:    s.AntiJamDwell,
		Speeds: Speeds{
			Brake:      s.Brake,
			Coarse:     s.CoarseSpeed,
			FineLoad:   s.FineLoadSpeed,
			FineUnload: s.FineUnloadSpeed,
			Full:       s.FullSpeed,
		},
		Timing: Timing{
			Period:           s.Period,
			Poll:             s.Poll,
			TensionPoll:      s.TensionPoll,
			ActuatorSettle:   s.ActuatorSettle,
			MechanicalSettle: s.MechanicalSettle,
			RefeedDwell:      s.RefeedDwell,
			MoveTimeout:      s.MoveTimeout,
			WaitTimeout:      s.WaitTimeout,
		},
		Logger: zerolog.Nop(),
	}, nil
}
