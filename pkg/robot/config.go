package robot

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultConfigFile = "sparky.toml"

// Config holds the robot configuration
type Config struct {
	Hardware HardwareConfig `toml:"hardware"`
	Shooter  ShooterConfig  `toml:"shooter"`
}

// HardwareConfig holds the servo bus and GPIO wiring
type HardwareConfig struct {
	Port        string      `toml:"port"`
	Calibration Calibration `toml:"calibration,omitempty"`
	Pins        PinConfig   `toml:"pins"`
}

// PinConfig names the GPIO pins of the panel
type PinConfig struct {
	BallAtShooter  string `toml:"ball_at_shooter"`
	BallAtMiddle   string `toml:"ball_at_middle"`
	BallAtTop      string `toml:"ball_at_top"`
	ReleaseRequest string `toml:"release_request"`
	Enable         string `toml:"enable"`
	Override       string `toml:"override"`
	ReleaseForward string `toml:"release_forward"`
	ReleaseReverse string `toml:"release_reverse"`
	ActiveLow      bool   `toml:"active_low"`
}

// ShooterConfig holds the tuning of the arm, loader and release sequence
type ShooterConfig struct {
	ZeroedThreshold int    `toml:"zeroed_threshold"`
	ReadyPreset     int    `toml:"ready_preset"` // where a release session returns
	LoadPreset      int    `toml:"load_preset"`
	HighPreset      int    `toml:"high_preset"`
	AutoPreset      int    `toml:"auto_preset"`
	ReturnPolicy    string `toml:"return_policy"` // "preset" or "captured"

	Brake           float64 `toml:"brake"`
	CoarseSpeed     float64 `toml:"coarse_speed"`
	FineLoadSpeed   float64 `toml:"fine_load_speed"`
	FineUnloadSpeed float64 `toml:"fine_unload_speed"`
	FullSpeed       float64 `toml:"full_speed"`

	Period           time.Duration `toml:"period"`
	Poll             time.Duration `toml:"poll"`
	TensionPoll      time.Duration `toml:"tension_poll"`
	AntiJamDwell     time.Duration `toml:"anti_jam_dwell"`
	ActuatorSettle   time.Duration `toml:"actuator_settle"`
	MechanicalSettle time.Duration `toml:"mechanical_settle"`
	RefeedDwell      time.Duration `toml:"refeed_dwell"`
	MoveTimeout      time.Duration `toml:"move_timeout"`
	WaitTimeout      time.Duration `toml:"wait_timeout"`
}

// DefaultConfig returns the configuration the robot was tuned with.
func DefaultConfig() Config {
	return Config{
		Hardware: HardwareConfig{
			Calibration: DefaultCalibration(),
			Pins: PinConfig{
				BallAtShooter:  "GPIO12",
				BallAtMiddle:   "GPIO14",
				BallAtTop:      "GPIO13",
				ReleaseRequest: "GPIO11",
				Enable:         "GPIO5",
				Override:       "GPIO4",
				ReleaseForward: "GPIO6",
				ReleaseReverse: "GPIO7",
			},
		},
		Shooter: ShooterConfig{
			ZeroedThreshold: 75,
			ReadyPreset:     125,
			LoadPreset:      115,
			HighPreset:      175,
			AutoPreset:      190,
			ReturnPolicy:    "preset",

			Brake:           -0.06,
			CoarseSpeed:     0.5,
			FineLoadSpeed:   0.3,
			FineUnloadSpeed: 0.2,
			FullSpeed:       1.0,

			Period:           5 * time.Millisecond,
			Poll:             5 * time.Millisecond,
			TensionPoll:      100 * time.Millisecond,
			AntiJamDwell:     time.Second,
			ActuatorSettle:   100 * time.Millisecond,
			MechanicalSettle: 300 * time.Millisecond,
			RefeedDwell:      time.Second,
			MoveTimeout:      10 * time.Second,
			WaitTimeout:      10 * time.Second,
		},
	}
}

// IsCalibrated returns true if the hardware has calibration data
func (h *HardwareConfig) IsCalibrated() bool {
	return len(h.Calibration) > 0
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Missing keys keep
// their defaults.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the shooter tuning for values the control core cannot use.
func (c *Config) Validate() error {
	s := c.Shooter
	switch strings.ToLower(strings.TrimSpace(s.ReturnPolicy)) {
	case "", "preset", "captured":
	default:
		return fmt.Errorf("return_policy %q must be preset or captured", s.ReturnPolicy)
	}
	for name, v := range map[string]float64{
		"coarse_speed":      s.CoarseSpeed,
		"fine_load_speed":   s.FineLoadSpeed,
		"fine_unload_speed": s.FineUnloadSpeed,
		"full_speed":        s.FullSpeed,
	} {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s %.2f out of range (0, 1]", name, v)
		}
	}
	if s.CoarseSpeed > s.FullSpeed {
		return fmt.Errorf("coarse_speed %.2f exceeds full_speed %.2f", s.CoarseSpeed, s.FullSpeed)
	}
	if s.Period <= 0 || s.Poll <= 0 || s.TensionPoll <= 0 {
		return fmt.Errorf("period, poll and tension_poll must be positive")
	}
	if c.Hardware.IsCalibrated() {
		if err := c.Hardware.Calibration.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
