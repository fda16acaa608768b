package main

import (
	"sync"
	"time"

	"github.com/gwillem/sparky/pkg/shooter"
	"github.com/gwillem/sparky/pkg/teleop"
)

// Terminals report key presses and auto-repeat but never releases, so a
// key counts as held until holdFor has passed without a repeat.
const holdFor = 150 * time.Millisecond

// keyInput turns key presses from the dashboard into operator controls.
type keyInput struct {
	mu       sync.Mutex
	pressed  map[string]time.Time
	intake   shooter.Intent
	override bool
	extra    func() bool // an external override switch, optional
}

func newKeyInput() *keyInput {
	return &keyInput{pressed: make(map[string]time.Time)}
}

// Press records a key press. It reports whether the key is an operator
// control.
func (k *keyInput) Press(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch key {
	case "i":
		k.intake = shooter.IntentLoad
	case "o":
		k.intake = shooter.IntentUnload
	case "p":
		k.intake = shooter.IntentStop
	case "v":
		k.override = !k.override
	case "w", "s", "e", "d", "1", "2", "3", "4", "z", " ", "f":
		k.pressed[key] = time.Now()
	default:
		return false
	}
	return true
}

func (k *keyInput) held(key string, now time.Time) bool {
	at, ok := k.pressed[key]
	return ok && now.Sub(at) < holdFor
}

// Read implements teleop.Input.
func (k *keyInput) Read() teleop.Controls {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := time.Now()

	c := teleop.Controls{
		CoarseLoad:   k.held("w", now),
		CoarseUnload: k.held("s", now),
		FineLoad:     k.held("e", now),
		FineUnload:   k.held("d", now),
		Zero:         k.held("z", now),
		Override:     k.override,
		Intake:       k.intake,
		Fire:         k.held(" ", now) || k.held("f", now),
	}
	for i, p := range []teleop.Preset{teleop.PresetLoad, teleop.PresetZero, teleop.PresetHigh, teleop.PresetLast} {
		if k.held(string(rune('1'+i)), now) {
			c.Preset = p
			break
		}
	}
	if k.extra != nil && k.extra() {
		c.Override = true
	}
	return c
}

// Override reports the keyboard override toggle.
func (k *keyInput) Override() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.override
}

// Intake reports the sticky intake intent.
func (k *keyInput) Intake() shooter.Intent {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.intake
}
