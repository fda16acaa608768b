// Package sparky is the ball shooter control core of a competition robot.
//
// A spring-loaded launching arm is tensioned by a motor-driven spool. Balls
// are staged by a two-stage conveyor and released by a latch actuator. The
// arm position controller, the loader and the release sequence share those
// actuators through two mutual-exclusion domains so that a manual polling
// loop and background operations never write the same motor at once.
//
// # Installation
//
//	go install github.com/gwillem/sparky/cmd/sparky@latest
//
// # Usage
//
// First, run setup to find the servo bus and write sparky.toml:
//
//	sparky setup
//
// Then run the shooter, or try it against the simulated plant:
//
//	sparky run
//	sparky simulate
//
// # Packages
//
//   - cmd/sparky: CLI with setup, run and simulate commands
//   - pkg/robot: servo bus, GPIO panel, tension encoder and configuration
//   - pkg/shooter: arm controller, loader, release sequencer, coordinator
//   - pkg/teleop: operator polling loop
//   - pkg/auto: autonomous two-shot routine
//   - pkg/sim: simulated plant
//   - pkg/logging: zerolog setup
package sparky
