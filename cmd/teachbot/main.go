package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"teachbot.json" description:"Configuration file"`
	Sim     bool   `long:"sim" description:"Drive a simulated arm instead of the serial bus"`
	Verbose bool   `short:"v" long:"verbose" description:"Log at debug level"`
	LogFile string `long:"log-file" description:"Log file (overrides the configured one)"`

	Setup SetupCommand `command:"setup" description:"Find the arm and calibrate it"`
	Teach TeachCommand `command:"teach" description:"Record or capture a gesture and play it back"`
	Edit  EditCommand  `command:"edit" alias:"tweak" description:"Step through and adjust the keyframes of a gesture"`
	Play  PlayCommand  `command:"play" description:"Replay a gesture file"`
	Info  InfoCommand  `command:"info" description:"Summarize a gesture file and its playback schedule"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "teachbot - teach a robot arm by hand and replay the motion"

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
