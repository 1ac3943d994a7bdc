package explorer

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/graph"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

// fakeWorld simulates the device: named screens with elements, and
// click-driven transitions between them. It serves as actuator, capture,
// and detector at once.
type fakeWorld struct {
	screens     map[string][]core.Element
	transitions map[string]map[string]string // screen -> element content -> next screen
	current     string
	appScreen   string // screen shown after a restart

	pointerOn string
	clicks    map[string]int
	restarts  int
	detects   int
	onDetect  func(n int)
}

func newFakeWorld(appScreen string) *fakeWorld {
	return &fakeWorld{
		screens:     make(map[string][]core.Element),
		transitions: make(map[string]map[string]string),
		appScreen:   appScreen,
		clicks:      make(map[string]int),
	}
}

func (w *fakeWorld) addScreen(name string, elements ...core.Element) {
	w.screens[name] = elements
}

func (w *fakeWorld) addTransition(screen, content, next string) {
	if w.transitions[screen] == nil {
		w.transitions[screen] = make(map[string]string)
	}
	w.transitions[screen][content] = next
}

func (w *fakeWorld) CaptureFrame() (*core.Frame, error) {
	return &core.Frame{Width: 1000, Height: 1000}, nil
}

func (w *fakeWorld) Detect(f *core.Frame) ([]core.Element, error) {
	w.detects++
	if w.onDetect != nil {
		w.onDetect(w.detects)
	}
	return w.screens[w.current], nil
}

func (w *fakeWorld) MoveRelative(dx, dy int) error { return nil }
func (w *fakeWorld) Scroll(dx, dy int) error       { return nil }
func (w *fakeWorld) TypeText(s string) error       { return nil }
func (w *fakeWorld) SpecialKey(n string) error     { return nil }
func (w *fakeWorld) Keypress(a string) error       { return nil }
func (w *fakeWorld) OpenSwitcher() error           { return nil }
func (w *fakeWorld) Recenter() error               { return nil }

func (w *fakeWorld) Click(button int) error {
	w.clicks[w.pointerOn]++
	if next, ok := w.transitions[w.current][w.pointerOn]; ok {
		w.current = next
	}
	return nil
}

// fakeController converges instantly, resolving the target coordinates to
// the element under them on the current screen.
type fakeController struct {
	w       *fakeWorld
	blockOn string // element content that triggers a credential prompt
}

func (c *fakeController) MoveTo(x, y, tol int) *core.MoveResult {
	for _, el := range c.w.screens[c.w.current] {
		ex, ey := el.Center(1000, 1000)
		if abs(ex-x) <= 2 && abs(ey-y) <= 2 {
			if el.Content == c.blockOn {
				return &core.MoveResult{Status: core.MoveBlocked, Err: core.ErrCredentialPrompt}
			}
			c.w.pointerOn = el.Content
			break
		}
	}
	return &core.MoveResult{
		Status: core.MoveConverged, FinalX: x, FinalY: y, PositionKnown: true, Accuracy: 99,
	}
}

func (c *fakeController) NoMovementCount() int { return 0 }
func (c *fakeController) ResetNoMovement()     {}

type fakeNav struct{ w *fakeWorld }

func (n *fakeNav) Restart(name string) error {
	n.w.restarts++
	n.w.current = n.w.appScreen
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// elAt builds an interactive element centered at cx on a 1000px screen.
func elAt(content string, cx int) core.Element {
	x := float64(cx)/1000 - 0.05
	return core.Element{
		Content:     content,
		BBox:        core.BBox{XMin: x, YMin: 0.45, XMax: x + 0.1, YMax: 0.55},
		Interactive: true,
		Source:      "ocr",
	}
}

func testEngine(t *testing.T, w *fakeWorld, tweak func(*Options)) (*Engine, *graph.Graph, *core.Budget, *fakeController) {
	t.Helper()
	m := similarity.NewMatcher(similarity.DefaultRules())
	g := graph.New(m)
	budget := core.NewBudget(time.Hour)
	ctrl := &fakeController{w: w}

	opts := Options{
		AppName:         "TestApp",
		ScreenWidth:     1000,
		ScreenHeight:    1000,
		MaxWastedClicks: 15,
		MaxNoMovement:   5,
		HomeDetection:   true,
	}
	if tweak != nil {
		tweak(&opts)
	}

	e := New(opts, g, ctrl, &fakeNav{w: w}, w, w, w, core.NopMetrics{}, &budget)
	e.sleep = func(time.Duration) {}
	return e, g, &budget, ctrl
}

// setupHome classifies the home screen then switches the world to the app.
func setupHome(t *testing.T, e *Engine, w *fakeWorld) {
	t.Helper()
	w.current = "home"
	if err := e.CaptureHome(); err != nil {
		t.Fatalf("capture home: %v", err)
	}
	w.current = w.appScreen
}

func TestRunExploresAllStates(t *testing.T) {
	w := newFakeWorld("root")
	w.addScreen("home", elAt("Launcher", 500))
	w.addScreen("root", elAt("Alpha", 500), elAt("Beta", 200))
	w.addScreen("menu", elAt("Quit", 500))
	w.addTransition("root", "Alpha", "menu")
	w.addTransition("menu", "Quit", "root")

	e, g, _, _ := testEngine(t, w, nil)
	setupHome(t, e, w)

	res, err := e.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed {
		t.Error("expected graph-exhausted completion")
	}

	stats := g.Stats()
	if stats.States != 3 {
		t.Errorf("expected 3 states (home, root, menu), got %d", stats.States)
	}
	if stats.Edges != 2 {
		t.Errorf("expected 2 edges, got %d", stats.Edges)
	}
	if w.restarts != 0 {
		t.Errorf("expected no restarts, got %d", w.restarts)
	}
	if w.clicks["Alpha"] != 1 || w.clicks["Quit"] != 1 || w.clicks["Beta"] != 1 {
		t.Errorf("unexpected click counts: %v", w.clicks)
	}
}

func TestRunDetectsAppFailedToOpen(t *testing.T) {
	w := newFakeWorld("home")
	w.addScreen("home", elAt("Launcher", 500))

	e, _, _, _ := testEngine(t, w, nil)
	setupHome(t, e, w)
	w.current = "home" // app never came up

	_, err := e.Run()
	if err == nil {
		t.Fatal("expected setup failure when still on the home screen")
	}
	var exErr *core.ExplorationError
	if !errors.As(err, &exErr) || exErr.Category != core.ErrCategoryConfig {
		t.Errorf("expected config-category setup error, got %v", err)
	}
}

func TestWastedClickCeilingTriggersSingleRestart(t *testing.T) {
	w := newFakeWorld("root")
	w.addScreen("home", elAt("Launcher", 500))
	w.addScreen("root",
		elAt("One", 500), elAt("Two", 200), elAt("Three", 800),
		elAt("Four", 350), elAt("Five", 650))

	e, g, _, _ := testEngine(t, w, func(o *Options) { o.MaxWastedClicks = 3 })
	setupHome(t, e, w)

	res, err := e.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed {
		t.Error("expected completion after draining the root state")
	}
	if w.restarts != 1 {
		t.Errorf("expected exactly one restart, got %d", w.restarts)
	}
	if got := g.Stats().States; got != 2 {
		t.Errorf("expected state count unchanged by restart, got %d", got)
	}
}

func TestHomeExitMarksTriggerDeadPermanently(t *testing.T) {
	w := newFakeWorld("root")
	w.addScreen("home", elAt("Launcher", 500))
	w.addScreen("root", elAt("Alpha", 500), elAt("Beta", 200), elAt("Gamma", 800))
	w.addScreen("menu", elAt("Quit", 500))
	w.addTransition("root", "Alpha", "menu")
	w.addTransition("menu", "Quit", "home") // exits the app

	e, g, _, _ := testEngine(t, w, nil)
	setupHome(t, e, w)

	res, err := e.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed {
		t.Error("expected completion")
	}
	if w.restarts != 1 {
		t.Errorf("expected one restart after home exit, got %d", w.restarts)
	}

	// The trigger into the exiting branch is blacklisted and never
	// retried after the restart.
	if got := g.Stats().DeadButtons; got != 1 {
		t.Errorf("expected 1 dead element, got %d", got)
	}
	if w.clicks["Alpha"] != 1 {
		t.Errorf("expected Alpha clicked exactly once, got %d", w.clicks["Alpha"])
	}
	if got := g.Stats().States; got != 3 {
		t.Errorf("expected state count unaffected by restart, got %d", got)
	}
}

func TestCredentialPromptBlacklistsElement(t *testing.T) {
	w := newFakeWorld("root")
	w.addScreen("home", elAt("Launcher", 500))
	w.addScreen("root", elAt("Alpha", 500), elAt("Secure", 200))
	w.addScreen("menu", elAt("Info", 500))
	w.addTransition("root", "Alpha", "menu")

	e, g, _, ctrl := testEngine(t, w, nil)
	ctrl.blockOn = "Secure"
	setupHome(t, e, w)

	res, err := e.Run()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Completed {
		t.Error("expected completion")
	}
	if w.clicks["Secure"] != 0 {
		t.Errorf("expected blocked element never clicked, got %d", w.clicks["Secure"])
	}
	// Both the blocked element and the last trigger are dead after the
	// credential restart path.
	if got := g.Stats().DeadButtons; got != 2 {
		t.Errorf("expected 2 dead elements, got %d", got)
	}
}

func TestBudgetExhaustionUnwindsAndSnapshots(t *testing.T) {
	w := newFakeWorld("root")
	w.addScreen("home", elAt("Launcher", 500))
	w.addScreen("root", elAt("Alpha", 500), elAt("Beta", 200))

	snap := filepath.Join(t.TempDir(), "state_graph.json")
	e, _, budget, _ := testEngine(t, w, func(o *Options) {
		o.SnapshotPath = snap
		o.RunID = "run-under-test"
	})
	setupHome(t, e, w)

	// Expire the budget right after the initial classification.
	w.onDetect = func(n int) {
		if n >= 2 {
			budget.Duration = -time.Second
		}
	}

	res, err := e.Run()
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if res.Completed {
		t.Error("expected budget-exhausted outcome, not completion")
	}

	data, err := os.ReadFile(snap)
	if err != nil {
		t.Fatalf("expected snapshot written: %v", err)
	}
	if !strings.Contains(string(data), "run-under-test") {
		t.Errorf("expected run id in snapshot, got:\n%s", data)
	}
}
