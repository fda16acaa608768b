package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/sparky/pkg/robot"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Sparky Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg := robot.DefaultConfig()
	if existing, err := robot.LoadConfigFrom(opts.Config); err == nil {
		cfg = *existing
		fmt.Printf("Updating %s\n\n", opts.Config)
	}

	port, err := choosePort(cfg.Hardware.Calibration)
	if err != nil {
		return err
	}
	cfg.Hardware.Port = port

	policy := cfg.Shooter.ReturnPolicy
	if policy == "" {
		policy = "preset"
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should the arm go after a shot?").
				Options(
					huh.NewOption(fmt.Sprintf("Ready preset (%d)", cfg.Shooter.ReadyPreset), "preset"),
					huh.NewOption("Back to the tension it was fired at", "captured"),
				).
				Value(&policy),
			huh.NewConfirm().
				Title("Are the panel sensors active low?").
				Value(&cfg.Hardware.Pins.ActiveLow),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	cfg.Shooter.ReturnPolicy = policy

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the shooter with: " + headerStyle.Render("sparky run"))
	return nil
}

// choosePort scans the serial ports for a bus carrying every shooter servo
// and asks the user to pick one when there is more than one.
func choosePort(cal robot.Calibration) (string, error) {
	fmt.Println("Scanning for the shooter servo bus...")
	fmt.Println()

	ports := findShooterPorts(cal.MotorIDs())
	switch len(ports) {
	case 0:
		fmt.Println("No shooter bus found.")
		fmt.Println("Make sure the servo controller is connected and powered on.")
		os.Exit(1)
	case 1:
		fmt.Println(successStyle.Render("Shooter bus found on " + ports[0]))
		return ports[0], nil
	}

	options := make([]huh.Option[string], 0, len(ports))
	for _, p := range ports {
		options = append(options, huh.NewOption(p, p))
	}
	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the shooter on?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port, nil
}

func findShooterPorts(ids []int) []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		if hasServos(port, ids) {
			fmt.Printf("  Found shooter servos on %s\n", port)
			found = append(found, port)
		}
	}
	return found
}

func hasServos(port string, ids []int) bool {
	if len(ids) == 0 {
		return false
	}
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return false
	}
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	servos, err := bus.Scan(ctx, slices.Min(ids), slices.Max(ids))
	if err != nil {
		return false
	}

	seen := make(map[int]bool, len(servos))
	for _, s := range servos {
		seen[s.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			return false
		}
	}
	return true
}
