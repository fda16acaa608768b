package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config string `short:"c" long:"config" default:"sparky.toml" description:"Configuration file"`

	Setup    SetupCommand    `command:"setup" description:"Find the shooter servo bus and write the configuration"`
	Run      RunCommand      `command:"run" description:"Run the shooter on the robot"`
	Simulate SimulateCommand `command:"simulate" alias:"sim" description:"Run the shooter against a simulated plant"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Sparky - ball shooter control for the competition robot"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
