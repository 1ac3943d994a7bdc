// Package metrics collects exploration counters and archives per-state
// artifacts. Everything here is fire-and-forget relative to the control
// loop: counter updates are cheap in-memory increments and image archival
// runs in the background.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probelab-dev/uiscout/pkg/config"
	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/logger"
)

// Manager implements core.MetricsSink over a per-run output directory.
type Manager struct {
	mu sync.Mutex

	appName string
	runID   string
	start   time.Time
	budget  time.Duration

	runDir    string
	imagesDir string

	statesFound      int
	statesExplored   int
	elementsFound    int
	elementsExplored int
	movesSuccess     int
	movesFailed      int
	accuracy         []float64
}

// New creates the run directories and a manager stamped with a fresh run id.
func New(cfg *config.Config, appName string) (*Manager, error) {
	stamp := time.Now().Format("20060102_150405")
	runDir := cfg.RunDir(appName, stamp)
	imagesDir := cfg.StateImagesDir(appName, stamp)

	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run directories: %w", err)
	}

	m := &Manager{
		appName:   appName,
		runID:     uuid.NewString(),
		start:     time.Now(),
		budget:    cfg.Budget(),
		runDir:    runDir,
		imagesDir: imagesDir,
	}
	logger.Info("metrics: run %s writing to %s", m.runID, runDir)
	return m, nil
}

// RunID returns the unique identifier for this run.
func (m *Manager) RunID() string { return m.runID }

// RunDir returns the run output directory.
func (m *Manager) RunDir() string { return m.runDir }

func (m *Manager) RecordStateFound() {
	m.mu.Lock()
	m.statesFound++
	m.mu.Unlock()
}

func (m *Manager) RecordStateExplored() {
	m.mu.Lock()
	m.statesExplored++
	m.mu.Unlock()
}

func (m *Manager) RecordElementsFound(n int) {
	m.mu.Lock()
	m.elementsFound += n
	m.mu.Unlock()
}

func (m *Manager) RecordElementExplored() {
	m.mu.Lock()
	m.elementsExplored++
	m.mu.Unlock()
}

func (m *Manager) RecordMoveSuccess(accuracy float64) {
	m.mu.Lock()
	m.movesSuccess++
	m.accuracy = append(m.accuracy, accuracy)
	m.mu.Unlock()
}

func (m *Manager) RecordMoveFailure() {
	m.mu.Lock()
	m.movesFailed++
	m.mu.Unlock()
}

// SaveStateImage archives a state's frame as state_<index>_image.webp in
// the background. Failures are logged and dropped.
func (m *Manager) SaveStateImage(stateIndex int, f *core.Frame) {
	if f == nil {
		return
	}
	dest := filepath.Join(m.imagesDir, fmt.Sprintf("state_%d_image.webp", stateIndex))

	go func() {
		var err error
		switch {
		case len(f.Image) > 0:
			err = os.WriteFile(dest, f.Image, 0o644)
		case f.Path != "":
			err = copyFile(f.Path, dest)
		default:
			return
		}
		if err != nil {
			logger.Error("metrics: could not archive state image %d: %v", stateIndex, err)
			return
		}
		logger.Debug("metrics: archived state image %s", dest)
	}()
}

// LogSummary writes the current counters to the log.
func (m *Manager) LogSummary(extra string) {
	m.mu.Lock()
	elapsed := time.Since(m.start)
	remaining := m.budget - elapsed
	if remaining < 0 {
		remaining = 0
	}
	summary := fmt.Sprintf(
		"metrics: elapsed %.0fs remaining %.0fs | states %d found / %d explored | elements %d found / %d explored | moves %d ok / %d failed | avg accuracy %.2f%%",
		elapsed.Seconds(), remaining.Seconds(),
		m.statesFound, m.statesExplored,
		m.elementsFound, m.elementsExplored,
		m.movesSuccess, m.movesFailed,
		m.averageAccuracyLocked())
	m.mu.Unlock()

	if extra != "" {
		summary += " | " + extra
	}
	logger.Info("%s", summary)
}

// AverageAccuracy returns the mean pointer-move accuracy so far.
func (m *Manager) AverageAccuracy() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.averageAccuracyLocked()
}

func (m *Manager) averageAccuracyLocked() float64 {
	if len(m.accuracy) == 0 {
		return 0
	}
	var sum float64
	for _, a := range m.accuracy {
		sum += a
	}
	return sum / float64(len(m.accuracy))
}

// Finalize logs the closing summary and writes final_report.txt into the
// run directory. completed distinguishes graph exhaustion from a budget
// timeout.
func (m *Manager) Finalize(completed bool) {
	outcome := "budget exhausted"
	if completed {
		outcome = "completed"
	}
	m.LogSummary("final summary: " + outcome)

	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Exploration Report for %s\n", m.appName)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", 50))
	fmt.Fprintf(&b, "Run ID: %s\n", m.runID)
	fmt.Fprintf(&b, "Start time: %s\n", m.start.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Duration: %.2f seconds\n", time.Since(m.start).Seconds())
	fmt.Fprintf(&b, "Budget: %.1f minutes\n", m.budget.Minutes())
	fmt.Fprintf(&b, "Outcome: %s\n\n", outcome)

	fmt.Fprintf(&b, "Statistics:\n")
	fmt.Fprintf(&b, "- States discovered: %d\n", m.statesFound)
	fmt.Fprintf(&b, "- States explored: %d\n", m.statesExplored)
	fmt.Fprintf(&b, "- Elements found: %d\n", m.elementsFound)
	fmt.Fprintf(&b, "- Elements explored: %d\n", m.elementsExplored)
	fmt.Fprintf(&b, "- Successful pointer moves: %d\n", m.movesSuccess)
	fmt.Fprintf(&b, "- Failed pointer moves: %d\n", m.movesFailed)
	fmt.Fprintf(&b, "- Average move accuracy: %.2f%%\n", m.averageAccuracyLocked())
	if total := m.movesSuccess + m.movesFailed; total > 0 {
		fmt.Fprintf(&b, "- Pointer move success rate: %.2f%%\n",
			float64(m.movesSuccess)/float64(total)*100)
	}

	path := filepath.Join(m.runDir, "final_report.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		logger.Error("metrics: could not write final report: %v", err)
		return
	}
	logger.Info("metrics: final report saved to %s", path)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
