package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/probelab-dev/uiscout/pkg/actuator"
	"github.com/probelab-dev/uiscout/pkg/config"
	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/device"
	"github.com/probelab-dev/uiscout/pkg/explorer"
	"github.com/probelab-dev/uiscout/pkg/graph"
	"github.com/probelab-dev/uiscout/pkg/logger"
	"github.com/probelab-dev/uiscout/pkg/metrics"
	"github.com/probelab-dev/uiscout/pkg/navigator"
	"github.com/probelab-dev/uiscout/pkg/pointer"
	"github.com/probelab-dev/uiscout/pkg/recorder"
	"github.com/probelab-dev/uiscout/pkg/similarity"
	"github.com/urfave/cli/v2"
)

var exploreCommand = &cli.Command{
	Name:      "explore",
	Usage:     "Explore an app and map its UI states",
	ArgsUsage: "<app-name>",
	Description: `Open the named app through the launcher, then click through its UI
until every reachable element has been tried or the time budget runs
out. Results land in the output directory:
  - state_graph.json   the explored state graph
  - state_images/      one archived frame per discovered state
  - exploration.log    the full run log
  - final_report.txt   the outcome summary

Examples:
  uiscout explore Notes
  uiscout explore "Adventure Puzzle Quest" --timeout-minutes 30
  uiscout explore Notes --record --output ./results`,
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "timeout-minutes",
			Aliases: []string{"t"},
			Usage:   "Exploration time budget in minutes",
		},
		&cli.IntFlag{
			Name:  "tolerance",
			Usage: "Pointer convergence tolerance in pixels",
		},
		&cli.Float64Flag{
			Name:  "state-tolerance",
			Usage: "Text similarity threshold for state deduplication (0..1)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Results directory (default: ./exploration_results)",
		},
		&cli.BoolFlag{
			Name:  "record",
			Usage: "Record the run through the recording service",
		},
		&cli.BoolFlag{
			Name:  "keep-open",
			Usage: "Leave apps running after exploration",
		},
	},
	Action: runExplore,
}

// calibrationUnits is the raw nudge used to measure the actuator gain
// before exploration starts.
const calibrationUnits = 1000

type calibrator interface {
	Calibrate(unitsX, unitsY int) (pointer.Calibration, error)
}

// calibratePointer seeds the gain estimate with a measured nudge. Failure
// is not fatal; the configured initial gain stays in effect.
func calibratePointer(c calibrator) bool {
	cal, err := c.Calibrate(calibrationUnits, calibrationUnits)
	if err != nil {
		logger.Warn("pointer calibration failed, keeping configured gain: %v", err)
		return false
	}
	logger.Info("pointer gain calibrated to (%.3f, %.3f)", cal.GainX, cal.GainY)
	return true
}

// runtime bundles the live connections one command needs.
type runtime struct {
	act        *actuator.Client
	perception *device.PerceptionClient
	matcher    *similarity.Matcher
	cache      *navigator.Cache
	controller *pointer.Controller
	nav        *navigator.Navigator
}

func (rt *runtime) Close() {
	if rt.act != nil {
		rt.act.Close()
	}
}

// loadConfig resolves the configuration for a command: file, environment,
// then global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv()

	if addr := c.String("actuator-addr"); addr != "" {
		cfg.Actuator.Addr = addr
	}
	if url := c.String("perception-url"); url != "" {
		cfg.Perception.URL = url
	}
	return cfg, nil
}

// buildRuntime dials the actuator and perception service and assembles the
// control stack on top of them.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	printSetupStep(fmt.Sprintf("Connecting to actuator at %s...", cfg.Actuator.Addr))
	transport, err := device.DialActuator(cfg.Actuator.Addr)
	if err != nil {
		printSetupFailure("Actuator unreachable")
		return nil, fmt.Errorf("connect to actuator: %w", err)
	}
	act := actuator.New(transport, cfg.Actuator.CommandTimeout)
	printSetupSuccess("Actuator connected")

	printSetupStep(fmt.Sprintf("Checking perception service at %s...", cfg.Perception.URL))
	perception := device.NewPerceptionClient(cfg.Perception.URL)
	if err := perception.Ping(); err != nil {
		act.Close()
		printSetupFailure("Perception service unreachable")
		return nil, fmt.Errorf("perception service: %w", err)
	}
	printSetupSuccess("Perception service healthy")

	matcher := similarity.NewMatcher(similarity.DefaultRules(),
		similarity.WithTolerance(cfg.Similarity.Tolerance),
		similarity.WithSizeRatioCutoff(cfg.Similarity.SizeRatioCutoff))

	controller := pointer.New(pointer.OptionsFromConfig(cfg), act, perception, perception, perception)

	cache := navigator.LoadCache(cfg.Paths.CacheFile, matcher)
	nav := navigator.New(navigator.OptionsFromConfig(cfg), act, perception, perception,
		controller, matcher, cache)

	return &runtime{
		act:        act,
		perception: perception,
		matcher:    matcher,
		cache:      cache,
		controller: controller,
		nav:        nav,
	}, nil
}

func runExplore(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("Usage: uiscout explore <app-name>", 1)
	}
	appName := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.App.Name = appName
	if v := c.Int("timeout-minutes"); v > 0 {
		cfg.Exploration.TimeoutMinutes = v
	}
	if v := c.Int("tolerance"); v > 0 {
		cfg.Pointer.Tolerance = v
	}
	if v := c.Float64("state-tolerance"); v > 0 {
		cfg.Similarity.Tolerance = v
	}
	if v := c.String("output"); v != "" {
		cfg.Paths.ResultsDir = v
	}
	if c.Bool("record") {
		cfg.Recorder.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m, err := metrics.New(cfg, appName)
	if err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	if err := logger.Init(filepath.Join(m.RunDir(), "exploration.log")); err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logger.Close()
	logger.SetDebug(c.Bool("debug"))

	fmt.Printf("\n%suiscout%s exploring %s%s%s (run %s)\n\n",
		color(colorBold), color(colorReset), color(colorBold), appName, color(colorReset), m.RunID())
	logger.Info("Run %s: exploring %q, budget %d min", m.RunID(), appName, cfg.Exploration.TimeoutMinutes)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	printSetupStep("Calibrating pointer gain...")
	if calibratePointer(rt.controller) {
		printSetupSuccess("Pointer calibrated")
	} else {
		printSetupFailure("Calibration failed, using configured gain")
	}

	if cfg.Recorder.Enabled {
		rec := recorder.NewClient(cfg.Recorder.Host, cfg.Recorder.Port)
		if rec.Start(appName) {
			printSetupSuccess("Recording started")
			defer func() {
				if path, ok := rec.Stop(); ok {
					fmt.Printf("  Recording saved: %s\n", path)
				}
			}()
		} else {
			printSetupFailure("Recording service refused, continuing without video")
			logger.Warn("Recording service refused to start for %q", appName)
		}
	}

	g := graph.New(rt.matcher)
	budget := core.NewBudget(cfg.Budget())
	opts := explorer.OptionsFromConfig(cfg)
	opts.MoveTolerance = cfg.Pointer.Tolerance
	opts.SnapshotPath = filepath.Join(m.RunDir(), "state_graph.json")
	opts.RunID = m.RunID()

	engine := explorer.New(opts, g, rt.controller, rt.nav, rt.act, rt.perception,
		rt.perception, m, &budget)

	printSetupStep("Capturing home state...")
	if err := engine.CaptureHome(); err != nil {
		return fmt.Errorf("capture home state: %w", err)
	}
	printSetupSuccess("Home state captured")

	printSetupStep(fmt.Sprintf("Opening %s...", appName))
	if err := rt.nav.Open(appName); err != nil {
		return fmt.Errorf("open app: %w", err)
	}
	printSetupSuccess("App opened")

	start := time.Now()
	result, err := engine.Run()
	if err != nil {
		m.Finalize(false)
		logger.Error("Exploration failed: %v", err)
		return fmt.Errorf("exploration: %w", err)
	}
	m.Finalize(result.Completed)

	if !c.Bool("keep-open") {
		printSetupStep("Closing apps...")
		rt.nav.CloseAll()
	}

	printSummary(result, time.Since(start), engine.Restarts(), m.AverageAccuracy())
	return nil
}

func printSummary(result *explorer.Result, elapsed time.Duration, restarts int, accuracy float64) {
	outcome := fmt.Sprintf("%s✓ complete%s", color(colorGreen), color(colorReset))
	if !result.Completed {
		outcome = fmt.Sprintf("%s⏱ budget exhausted%s", color(colorCyan), color(colorReset))
	}
	fmt.Printf("\n  %s  (%s)\n", outcome, elapsed.Round(time.Second))
	fmt.Printf("    States:    %d\n", result.Stats.States)
	fmt.Printf("    Edges:     %d\n", result.Stats.Edges)
	fmt.Printf("    Buttons:   %d (%d dead)\n", result.Stats.Buttons, result.Stats.DeadButtons)
	fmt.Printf("    Progress:  %.1f%%\n", result.Stats.ProgressPct)
	fmt.Printf("    Restarts:  %d\n", restarts)
	fmt.Printf("    Accuracy:  %.1f%%\n", accuracy)
	fmt.Printf("    Graph:     %s\n", result.SnapshotPath)
}
