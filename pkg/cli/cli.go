// Package cli provides the command-line interface for uiscout.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to uiscout.yaml (default: look in current directory)",
		EnvVars: []string{"UISCOUT_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "actuator-addr",
		Usage:   "TCP address of the actuator bridge",
		EnvVars: []string{"UISCOUT_ACTUATOR_ADDR"},
	},
	&cli.StringFlag{
		Name:    "perception-url",
		Usage:   "Base URL of the perception service",
		EnvVars: []string{"UISCOUT_PERCEPTION_URL"},
	},
	&cli.BoolFlag{
		Name:    "debug",
		Usage:   "Enable debug logging",
		EnvVars: []string{"UISCOUT_DEBUG"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	app := &cli.App{
		Name:    "uiscout",
		Usage:   "Exploratory UI testing for headset apps",
		Version: Version,
		Description: `uiscout drives a physical pointer actuator through a headset UI,
perceives the screen through an external detection service, and maps
the app as a graph of deduplicated UI states.

Examples:
  uiscout explore "Adventure Puzzle Quest"
  uiscout explore Notes --timeout-minutes 30 --record
  uiscout close-all
  uiscout cache`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			exploreCommand,
			closeAllCommand,
			forceQuitCommand,
			cacheCommand,
		},
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
)

var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printSetupStep(msg string) {
	fmt.Printf("  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

func printSetupSuccess(msg string) {
	fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

func printSetupFailure(msg string) {
	fmt.Printf("  %s✗%s %s\n", color(colorRed), color(colorReset), msg)
}
