// Package config handles configuration for uiscout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates all configuration sections. Zero values are filled in
// by Default(); a YAML file and environment variables override on top.
type Config struct {
	App         App         `yaml:"app"`
	Actuator    Actuator    `yaml:"actuator"`
	Screen      Screen      `yaml:"screen"`
	Pointer     Pointer     `yaml:"pointer"`
	Similarity  Similarity  `yaml:"similarity"`
	Exploration Exploration `yaml:"exploration"`
	Perception  Perception  `yaml:"perception"`
	Paths       Paths       `yaml:"paths"`
	Recorder    Recorder    `yaml:"recorder"`
}

// Perception configures the service that owns the camera feed and the
// detection models.
type Perception struct {
	URL string `yaml:"url"`
}

// App identifies the target application.
type App struct {
	Name string `yaml:"name"`
}

// Actuator configures the command channel to the pointer hardware.
type Actuator struct {
	// Addr is the TCP address of the actuator bridge.
	Addr string `yaml:"addr"`

	// CommandTimeout bounds every synchronous command; exceeding it
	// triggers a transport reset and a single retry.
	CommandTimeout time.Duration `yaml:"commandTimeout"`

	// MaxUnits is the raw unit magnitude that drives the pointer across the
	// whole screen; recovery probes use it to slam into corners.
	MaxUnits int `yaml:"maxUnits"`

	// TextChunkSize bounds the characters per TypeText command.
	TextChunkSize int `yaml:"textChunkSize"`

	// DitherStep is the magnitude of the antagonistic nudge issued after
	// every completed move to keep the device responsive.
	DitherStep int `yaml:"ditherStep"`
}

// Screen describes the captured frame geometry.
type Screen struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Pointer configures the closed-loop positioning controller.
type Pointer struct {
	Tolerance   int `yaml:"tolerance"`   // convergence tolerance, px
	MaxAttempts int `yaml:"maxAttempts"` // per-move iteration ceiling

	InitialGainX float64 `yaml:"initialGainX"`
	InitialGainY float64 `yaml:"initialGainY"`

	// Gain learning over rolling windows of completed moves.
	LearningSamples      int     `yaml:"learningSamples"`
	LearningRate         float64 `yaml:"learningRate"`
	MinSamples           int     `yaml:"minSamples"`
	ConsistencyStdDevMax float64 `yaml:"consistencyStdDevMax"`

	// Stuck detection: observed displacement below NoMovementPx for
	// consecutive samples counts toward MaxNoMovement.
	NoMovementPx  int `yaml:"noMovementPx"`
	MaxNoMovement int `yaml:"maxNoMovement"`
	MaxLostCount  int `yaml:"maxLostCount"`
}

// Similarity configures fuzzy state deduplication. Both thresholds came out
// of tuning runs and are not guaranteed optimal for every UI, hence
// configurable.
type Similarity struct {
	Tolerance       float64 `yaml:"tolerance"`
	SizeRatioCutoff float64 `yaml:"sizeRatioCutoff"`
}

// Exploration configures the top-level engine.
type Exploration struct {
	TimeoutMinutes  int  `yaml:"timeoutMinutes"`
	MaxWastedClicks int  `yaml:"maxWastedClicks"`
	MaxSearchPages  int  `yaml:"maxSearchPages"`
	HomeDetection   bool `yaml:"homeDetection"`
}

// Paths holds output locations.
type Paths struct {
	ResultsDir   string `yaml:"resultsDir"`
	CacheFile    string `yaml:"cacheFile"`
	UseTimestamp bool   `yaml:"useTimestamp"`
}

// Recorder configures the optional out-of-band recording service.
type Recorder struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Actuator: Actuator{
			Addr:           "127.0.0.1:8321",
			CommandTimeout: 15 * time.Second,
			MaxUnits:       9999,
			TextChunkSize:  16,
			DitherStep:     1,
		},
		Screen: Screen{
			Width:  3024,
			Height: 1964,
		},
		Pointer: Pointer{
			Tolerance:            15,
			MaxAttempts:          10,
			InitialGainX:         0.60,
			InitialGainY:         0.91,
			LearningSamples:      3,
			LearningRate:         0.3,
			MinSamples:           3,
			ConsistencyStdDevMax: 0.1,
			NoMovementPx:         5,
			MaxNoMovement:        5,
			MaxLostCount:         5,
		},
		Similarity: Similarity{
			Tolerance:       0.7,
			SizeRatioCutoff: 0.7,
		},
		Exploration: Exploration{
			TimeoutMinutes:  20,
			MaxWastedClicks: 15,
			MaxSearchPages:  20,
			HomeDetection:   true,
		},
		Perception: Perception{
			URL: "http://127.0.0.1:8000",
		},
		Paths: Paths{
			ResultsDir:   "exploration_results",
			CacheFile:    "app_cache.yaml",
			UseTimestamp: true,
		},
		Recorder: Recorder{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8899,
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir looks for uiscout.yaml or uiscout.yml in the directory,
// falling back to defaults when neither exists.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"uiscout.yaml", "uiscout.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return Default(), nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("UISCOUT_TIMEOUT_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Exploration.TimeoutMinutes = n
		}
	}
	if v := os.Getenv("UISCOUT_RESULTS_DIR"); v != "" {
		c.Paths.ResultsDir = v
	}
	if v := os.Getenv("UISCOUT_ACTUATOR_ADDR"); v != "" {
		c.Actuator.Addr = v
	}
	if v := os.Getenv("UISCOUT_PERCEPTION_URL"); v != "" {
		c.Perception.URL = v
	}
	if v := os.Getenv("UISCOUT_RECORDER_HOST"); v != "" {
		c.Recorder.Host = v
	}
}

// Validate checks the configuration for values the run cannot start with.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name must be specified")
	}
	if c.Screen.Width <= 0 || c.Screen.Height <= 0 {
		return fmt.Errorf("screen dimensions must be positive: %dx%d", c.Screen.Width, c.Screen.Height)
	}
	if c.Similarity.Tolerance <= 0 || c.Similarity.Tolerance > 1 {
		return fmt.Errorf("similarity tolerance must be in (0,1]: %v", c.Similarity.Tolerance)
	}
	if c.Pointer.MaxAttempts <= 0 {
		return fmt.Errorf("pointer maxAttempts must be positive")
	}
	if c.Actuator.Addr == "" {
		return fmt.Errorf("actuator address must be specified")
	}
	if c.Perception.URL == "" {
		return fmt.Errorf("perception service URL must be specified")
	}
	return nil
}

// Budget returns the exploration time allotment.
func (c *Config) Budget() time.Duration {
	return time.Duration(c.Exploration.TimeoutMinutes) * time.Minute
}

// RunDir returns the output directory for one run of the given app.
func (c *Config) RunDir(appName, runStamp string) string {
	if c.Paths.UseTimestamp && runStamp != "" {
		return filepath.Join(c.Paths.ResultsDir, appName, "run_"+runStamp)
	}
	return filepath.Join(c.Paths.ResultsDir, appName)
}

// StateImagesDir returns the per-state image archive directory for one run.
func (c *Config) StateImagesDir(appName, runStamp string) string {
	return filepath.Join(c.RunDir(appName, runStamp), "state_images")
}
