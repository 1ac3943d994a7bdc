// Package explorer implements the top-level exploration loop: classify the
// current screen, pick the next unexplored element, reach and click it,
// reclassify, and keep going depth-first until the state graph or the time
// budget is exhausted. Recovery is restart-and-resume: the app is closed
// and relaunched while the graph carries over unchanged.
package explorer

import (
	"errors"
	"fmt"
	"time"

	"github.com/probelab-dev/uiscout/pkg/config"
	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/graph"
	"github.com/probelab-dev/uiscout/pkg/logger"
)

const (
	postClickSettle = 1 * time.Second
	restartSettle   = 3 * time.Second
)

// Controller positions the pointer. Satisfied by pointer.Controller.
type Controller interface {
	MoveTo(targetX, targetY, tolerance int) *core.MoveResult
	NoMovementCount() int
	ResetNoMovement()
}

// AppNavigator restarts the target application. Satisfied by
// navigator.Navigator.
type AppNavigator interface {
	Restart(name string) error
}

// Options tunes the engine.
type Options struct {
	AppName         string
	ScreenWidth     int
	ScreenHeight    int
	MaxWastedClicks int
	MaxNoMovement   int
	HomeDetection   bool
	MoveTolerance   int // 0 uses the controller default

	SnapshotPath string
	RunID        string
}

// OptionsFromConfig builds engine options from the run configuration.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		AppName:         c.App.Name,
		ScreenWidth:     c.Screen.Width,
		ScreenHeight:    c.Screen.Height,
		MaxWastedClicks: c.Exploration.MaxWastedClicks,
		MaxNoMovement:   c.Pointer.MaxNoMovement,
		HomeDetection:   c.Exploration.HomeDetection,
	}
}

// Result summarizes one exploration run.
type Result struct {
	// Completed is true when the graph ran out of unexplored elements, as
	// opposed to the wall-clock budget running out.
	Completed    bool
	Stats        graph.Stats
	SnapshotPath string
}

// trigger remembers the element whose click produced the most recent
// genuinely new state. It is the blacklisting target when exploration
// later falls out of the app.
type trigger struct {
	fingerprint string
	element     core.Element
}

// stackFrame is one level of the depth-first walk.
type stackFrame struct {
	state *core.State
}

// visit outcomes.
type outcome int

const (
	outcomeNext    outcome = iota // keep selecting from the same frame
	outcomeDescend                // new state pushed, continue there
	outcomeRestart                // restart requested
	outcomeTimeout                // budget ran out mid-visit
)

// Engine is the exploration state machine.
type Engine struct {
	opts       Options
	graph      *graph.Graph
	controller Controller
	nav        AppNavigator
	act        core.Actuator
	capture    core.FrameCapture
	detector   core.ElementDetector
	metrics    core.MetricsSink
	budget     *core.Budget

	stack        []*stackFrame
	lastTrigger  *trigger
	wastedClicks int
	restarts     int

	sleep func(time.Duration)
}

// New assembles an engine. metrics may be core.NopMetrics{}.
func New(opts Options, g *graph.Graph, controller Controller, nav AppNavigator,
	act core.Actuator, capture core.FrameCapture, detector core.ElementDetector,
	metrics core.MetricsSink, budget *core.Budget) *Engine {
	return &Engine{
		opts:       opts,
		graph:      g,
		controller: controller,
		nav:        nav,
		act:        act,
		capture:    capture,
		detector:   detector,
		metrics:    metrics,
		budget:     budget,
		sleep:      time.Sleep,
	}
}

// CaptureHome classifies the current screen and designates it the home
// state. Must run before the target app opens.
func (e *Engine) CaptureHome() error {
	st, _, err := e.classify(nil, core.Element{})
	if err != nil {
		return fmt.Errorf("capture home state: %w", err)
	}
	e.graph.SetHome(st)
	return nil
}

// Run explores until the graph or the budget is exhausted. The returned
// error reports setup failures only; a budget timeout is a normal outcome
// with Completed=false.
func (e *Engine) Run() (*Result, error) {
	st, _, err := e.classify(nil, core.Element{})
	if err != nil {
		return nil, core.ErrSetup.WithCause(err)
	}

	if e.opts.HomeDetection && e.graph.IsHome(st) {
		return nil, core.ErrSetup.WithMessage(
			fmt.Sprintf("app %q failed to open: still on the home screen", e.opts.AppName))
	}

	logger.Info("explorer: starting exploration of %q", e.opts.AppName)
	e.stack = []*stackFrame{{state: st}}

	completed := e.loop()
	return e.finalize(completed), nil
}

// loop drives the work stack. Returns true when the graph was exhausted.
func (e *Engine) loop() bool {
	for len(e.stack) > 0 {
		if e.budget.Exhausted() {
			logger.Info("explorer: budget exhausted, unwinding")
			return false
		}

		fr := e.stack[len(e.stack)-1]
		el := e.nextElement(fr.state)
		if el == nil {
			e.stack = e.stack[:len(e.stack)-1]
			e.metrics.RecordStateExplored()
			continue
		}

		logger.Info("explorer: visiting %q (id %s) at depth %d", el.Content, el.ID, len(e.stack))

		switch e.visit(fr.state, *el) {
		case outcomeNext:
			// same frame, next element

		case outcomeDescend:
			// visit pushed the new frame

		case outcomeRestart:
			if !e.restartAndResume() {
				return true
			}

		case outcomeTimeout:
			return false
		}
	}

	logger.Info("explorer: work stack drained")
	return true
}

// nextElement pops the nearest-to-center unexplored element of the state,
// skipping blacklisted ones.
func (e *Engine) nextElement(st *core.State) *core.Element {
	for {
		el := st.NextUnexplored()
		if el == nil {
			return nil
		}
		if e.graph.IsDead(st.Fingerprint, el.ID) {
			logger.Debug("explorer: skipping dead element %s", el.ID)
			continue
		}
		return el
	}
}

// visit performs Act and Reclassify for one element.
func (e *Engine) visit(st *core.State, el core.Element) outcome {
	targetX, targetY := el.Center(e.opts.ScreenWidth, e.opts.ScreenHeight)
	res := e.controller.MoveTo(targetX, targetY, e.opts.MoveTolerance)

	switch res.Status {
	case core.MoveBlocked:
		logger.Warn("explorer: element %q led to a credential prompt, blacklisting", el.Content)
		e.graph.MarkDead(st.Fingerprint, el.ID)
		e.metrics.RecordMoveFailure()
		return outcomeRestart

	case core.MoveStuck:
		e.metrics.RecordMoveFailure()
		if e.controller.NoMovementCount() >= e.opts.MaxNoMovement {
			logger.Warn("explorer: element %q unreachable, pointer stuck, blacklisting", el.Content)
			e.graph.MarkDead(st.Fingerprint, el.ID)
			e.controller.ResetNoMovement()
		}
		return outcomeNext

	case core.MoveFailed:
		logger.Warn("explorer: could not reach element %q: %v", el.Content, res.Err)
		e.metrics.RecordMoveFailure()
		return outcomeNext
	}

	e.metrics.RecordMoveSuccess(res.Accuracy)

	if err := e.act.Click(1); err != nil {
		logger.Warn("explorer: click on %q failed: %v", el.Content, err)
		return outcomeNext
	}
	e.sleep(postClickSettle)

	newState, known, err := e.classify(st, el)
	if err != nil {
		if errors.Is(err, core.ErrExplorationTimeout) {
			return outcomeTimeout
		}
		logger.Error("explorer: reclassify after %q failed: %v", el.Content, err)
		return outcomeNext
	}

	if known {
		e.wastedClicks++
		logger.Debug("explorer: reached known state (%d wasted clicks)", e.wastedClicks)

		if e.opts.HomeDetection && e.graph.IsHome(newState) {
			logger.Warn("explorer: element %q exited to the home screen", el.Content)
			return outcomeRestart
		}
		if e.wastedClicks >= e.opts.MaxWastedClicks {
			logger.Info("explorer: %d clicks without a new state, restarting", e.wastedClicks)
			return outcomeRestart
		}
		return outcomeNext
	}

	e.wastedClicks = 0
	e.lastTrigger = &trigger{fingerprint: st.Fingerprint, element: el}
	logger.Info("explorer: new state discovered, %d total", e.graph.StateCount())
	e.metrics.LogSummary("")

	e.stack = append(e.stack, &stackFrame{state: newState})
	return outcomeDescend
}

// classify captures a frame, detects elements, and matches or creates the
// corresponding graph state. clicked carries the element whose click led
// here so the transition edge can be recorded; from is nil for the first
// classification of a session segment.
func (e *Engine) classify(from *core.State, clicked core.Element) (*core.State, bool, error) {
	if e.budget.Exhausted() {
		return nil, false, core.ErrExplorationTimeout
	}

	frame, err := e.capture.CaptureFrame()
	if err != nil {
		return nil, false, fmt.Errorf("capture frame: %w", err)
	}
	detected, err := e.detector.Detect(frame)
	if err != nil {
		return nil, false, fmt.Errorf("detect elements: %w", err)
	}

	// Interactive elements only, with ids assigned by detection order.
	elements := make([]core.Element, 0, len(detected))
	for _, d := range detected {
		if !d.Interactive {
			continue
		}
		d.ID = fmt.Sprintf("%d", len(elements))
		elements = append(elements, d)
	}

	e.metrics.RecordElementsFound(len(elements))
	if from != nil {
		e.metrics.RecordElementExplored()
	}

	st := core.NewState(elements, e.opts.ScreenWidth, e.opts.ScreenHeight)

	if eq := e.graph.FindEquivalent(st); eq != nil {
		if from != nil && from != eq {
			e.graph.AddEdge(from, eq, clicked)
		}
		return eq, true, nil
	}

	e.graph.AddIfNew(st)
	e.metrics.RecordStateFound()
	e.metrics.SaveStateImage(e.graph.StateCount()-1, frame)

	if from != nil {
		e.graph.AddEdge(from, st, clicked)
	}
	return st, false, nil
}

// restartAndResume blacklists the last trigger, relaunches the app, and
// re-enters Classify against the unchanged graph. Returns false when no
// unexplored elements remain, which ends the run as completed.
func (e *Engine) restartAndResume() bool {
	if e.lastTrigger != nil {
		e.graph.MarkDead(e.lastTrigger.fingerprint, e.lastTrigger.element.ID)
		logger.Info("explorer: marked %q as dead", e.lastTrigger.element.Content)
		e.lastTrigger = nil
	}

	if len(e.graph.UnexploredStates()) == 0 {
		logger.Info("explorer: no unexplored elements remaining, exploration complete")
		return false
	}

	e.restarts++
	logger.Info("explorer: restart %d, closing and reopening %q", e.restarts, e.opts.AppName)
	if err := e.nav.Restart(e.opts.AppName); err != nil {
		logger.Error("explorer: restart failed: %v", err)
	}
	e.sleep(restartSettle)

	e.wastedClicks = 0
	e.controller.ResetNoMovement()

	st, _, err := e.classify(nil, core.Element{})
	if err != nil {
		logger.Error("explorer: could not classify after restart: %v", err)
		e.stack = nil
		return true
	}
	e.stack = []*stackFrame{{state: st}}
	return true
}

// finalize computes final stats and writes the run snapshot. Always runs,
// whatever ended the exploration.
func (e *Engine) finalize(completed bool) *Result {
	stats := e.graph.Stats()
	logger.Info("explorer: finished: %d states, %d edges, %.1f%% explored",
		stats.States, stats.Edges, stats.ProgressPct)

	result := &Result{Completed: completed, Stats: stats}

	if e.opts.SnapshotPath != "" {
		if err := e.graph.WriteSnapshot(e.opts.SnapshotPath, e.opts.RunID); err != nil {
			logger.Error("explorer: could not write snapshot: %v", err)
		} else {
			result.SnapshotPath = e.opts.SnapshotPath
			logger.Info("explorer: snapshot written to %s", e.opts.SnapshotPath)
		}
	}
	return result
}

// Restarts returns how many restart-and-resume cycles the run needed.
func (e *Engine) Restarts() int {
	return e.restarts
}
