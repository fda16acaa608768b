package robot

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparky.toml")

	cfg := DefaultConfig()
	cfg.Hardware.Port = "/dev/ttyUSB0"
	cfg.Shooter.ReturnPolicy = "captured"
	cfg.Shooter.RefeedDwell = 750 * time.Millisecond
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	got, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if got.Hardware.Port != "/dev/ttyUSB0" {
		t.Errorf("port = %q", got.Hardware.Port)
	}
	if got.Shooter.ReturnPolicy != "captured" {
		t.Errorf("return policy = %q", got.Shooter.ReturnPolicy)
	}
	if got.Shooter.RefeedDwell != 750*time.Millisecond {
		t.Errorf("refeed dwell = %v", got.Shooter.RefeedDwell)
	}
	if got.Hardware.Calibration[ArmMotor].StepsPerCount != 1024 {
		t.Errorf("arm calibration lost: %+v", got.Hardware.Calibration[ArmMotor])
	}
}

func TestLoadConfigFrom_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sparky.toml")
	data := "[shooter]\nready_preset = 140\ntension_poll = \"50ms\"\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Shooter.ReadyPreset != 140 {
		t.Errorf("ready preset = %d, want 140", cfg.Shooter.ReadyPreset)
	}
	if cfg.Shooter.TensionPoll != 50*time.Millisecond {
		t.Errorf("tension poll = %v, want 50ms", cfg.Shooter.TensionPoll)
	}
	if cfg.Shooter.ZeroedThreshold != 75 {
		t.Errorf("zeroed threshold = %d, want default 75", cfg.Shooter.ZeroedThreshold)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"bad policy", func(c *Config) { c.Shooter.ReturnPolicy = "last" }, false},
		{"zero speed", func(c *Config) { c.Shooter.CoarseSpeed = 0 }, false},
		{"coarse above full", func(c *Config) { c.Shooter.FullSpeed = 0.4 }, false},
		{"zero period", func(c *Config) { c.Shooter.Period = 0 }, false},
		{"zero max velocity", func(c *Config) {
			arm := c.Hardware.Calibration[ArmMotor]
			arm.MaxVelocity = 0
			c.Hardware.Calibration[ArmMotor] = arm
		}, false},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}
