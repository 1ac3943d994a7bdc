package navigator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

// fakeDevice implements the actuator, capture, and detector sides of the
// navigator. Scrolling twice in the same direction flips the launcher page;
// when launchPages is set, confirming with ENTER switches the screen to it,
// simulating a successful typed launch.
type fakeDevice struct {
	commands    []string
	pages       [][]core.Element
	launchPages [][]core.Element
	pageIdx     int
	halfSteps   int
}

func (d *fakeDevice) record(cmd string) { d.commands = append(d.commands, cmd) }

func (d *fakeDevice) MoveRelative(dx, dy int) error {
	d.record("move")
	return nil
}

func (d *fakeDevice) Scroll(dx, dy int) error {
	d.record("scroll")
	d.halfSteps++
	if d.halfSteps < 2 {
		return nil
	}
	d.halfSteps = 0
	if dy > 0 && d.pageIdx < len(d.pages)-1 {
		d.pageIdx++
	} else if dy < 0 && d.pageIdx > 0 {
		d.pageIdx--
	}
	return nil
}

func (d *fakeDevice) Click(button int) error    { d.record("click"); return nil }
func (d *fakeDevice) TypeText(s string) error   { d.record("type:" + s); return nil }
func (d *fakeDevice) SpecialKey(n string) error {
	d.record("key:" + n)
	if n == "ENTER" && d.launchPages != nil {
		d.pages = d.launchPages
		d.pageIdx = 0
	}
	return nil
}
func (d *fakeDevice) Keypress(a string) error   { d.record("press:" + a); return nil }
func (d *fakeDevice) OpenSwitcher() error       { d.record("switcher"); return nil }
func (d *fakeDevice) Recenter() error           { d.record("recenter"); return nil }

func (d *fakeDevice) CaptureFrame() (*core.Frame, error) {
	return &core.Frame{Width: 1000, Height: 1000}, nil
}

func (d *fakeDevice) Detect(f *core.Frame) ([]core.Element, error) {
	if len(d.pages) == 0 {
		return nil, nil
	}
	return d.pages[d.pageIdx], nil
}

func (d *fakeDevice) count(cmd string) int {
	n := 0
	for _, c := range d.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

func (d *fakeDevice) typed() []string {
	var out []string
	for _, c := range d.commands {
		if strings.HasPrefix(c, "type:") {
			out = append(out, strings.TrimPrefix(c, "type:"))
		}
	}
	return out
}

// fakeMover converges instantly and remembers each target.
type fakeMover struct {
	targets [][2]int
	fail    bool
}

func (m *fakeMover) MoveTo(x, y, tol int) *core.MoveResult {
	m.targets = append(m.targets, [2]int{x, y})
	if m.fail {
		return &core.MoveResult{Status: core.MoveFailed}
	}
	return &core.MoveResult{Status: core.MoveConverged, FinalX: x, FinalY: y, PositionKnown: true}
}

func testNavigator(t *testing.T, dev *fakeDevice, mover Mover) (*Navigator, *Cache) {
	t.Helper()
	m := similarity.NewMatcher(similarity.DefaultRules())
	cache := LoadCache(filepath.Join(t.TempDir(), "app_cache.yaml"), m)
	n := New(Options{
		ChunkSize:      16,
		MaxSearchPages: 5,
		MaxUnits:       9999,
		ScreenWidth:    1000,
		ScreenHeight:   1000,
	}, dev, dev, dev, mover, m, cache)
	n.sleep = func(time.Duration) {}
	return n, cache
}

func ocrElement(content string, x float64) core.Element {
	return core.Element{
		ID:      content,
		Content: content,
		BBox:    core.BBox{XMin: x, YMin: 0.4, XMax: x + 0.2, YMax: 0.6},
		Source:  "ocr",
	}
}

func TestOpenTypesNameInChunks(t *testing.T) {
	dev := &fakeDevice{}
	n, _ := testNavigator(t, dev, &fakeMover{})

	if err := n.Open("Adventure Puzzle Quest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	typed := dev.typed()
	want := []string{"Adventure Puzzle", " Quest"}
	if len(typed) != len(want) {
		t.Fatalf("expected %d text chunks, got %v", len(want), typed)
	}
	for i := range want {
		if typed[i] != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, typed[i], want[i])
		}
	}

	if got := dev.count("press:LAUNCHER"); got != 2 {
		t.Errorf("expected launcher toggled twice, got %d", got)
	}
	if got := dev.count("key:ENTER"); got != 1 {
		t.Errorf("expected one confirm keypress, got %d", got)
	}
}

func TestOpenShortNameSingleChunk(t *testing.T) {
	dev := &fakeDevice{}
	n, _ := testNavigator(t, dev, &fakeMover{})

	if err := n.Open("Notes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	typed := dev.typed()
	if len(typed) != 1 || typed[0] != "Notes" {
		t.Errorf("expected single chunk [Notes], got %v", typed)
	}
}

func TestOpenTypedLaunchSkipsGridScan(t *testing.T) {
	// ENTER switches the screen, so the typed launch worked and no grid
	// scan should follow.
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1), ocrElement("Photos", 0.5)},
		},
		launchPages: [][]core.Element{
			{ocrElement("New Game", 0.1), ocrElement("Continue", 0.5)},
		},
	}
	mover := &fakeMover{}
	n, _ := testNavigator(t, dev, mover)

	if err := n.Open("Adventure Puzzle Quest"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := dev.count("press:LAUNCHER"); got != 2 {
		t.Errorf("expected launcher toggled twice, got %d", got)
	}
	if got := dev.count("click"); got != 0 {
		t.Errorf("expected no icon clicks, got %d", got)
	}
	if len(mover.targets) != 0 {
		t.Errorf("expected no positioning moves, got %v", mover.targets)
	}
}

func TestOpenFallsBackToGridScan(t *testing.T) {
	// The typed launch leaves the screen unchanged; Open must locate the
	// icon in the grid and click it instead.
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1), ocrElement("Photos", 0.5)},
			{ocrElement("Browser", 0.1), ocrElement("Notes", 0.4)},
		},
	}
	mover := &fakeMover{}
	n, cache := testNavigator(t, dev, mover)

	if err := n.Open("Notes"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mover.targets) != 1 {
		t.Fatalf("expected one positioning move onto the icon, got %v", mover.targets)
	}
	if mover.targets[0] != [2]int{500, 500} {
		t.Errorf("expected icon target (500, 500), got %v", mover.targets[0])
	}
	if got := dev.count("click"); got != 1 {
		t.Errorf("expected one icon click, got %d", got)
	}
	// The launcher is reopened for the scan.
	if got := dev.count("press:LAUNCHER"); got != 3 {
		t.Errorf("expected launcher toggled three times, got %d", got)
	}
	if page, ok := cache.Lookup("Notes"); !ok || page != 1 {
		t.Errorf("expected scan to cache Notes on page 1, got (%d, %v)", page, ok)
	}
}

func TestOpenFallbackAppMissing(t *testing.T) {
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1)},
			{ocrElement("Browser", 0.1)},
		},
	}
	n, _ := testNavigator(t, dev, &fakeMover{})

	err := n.Open("Chess")
	if err == nil {
		t.Fatal("expected error when the app is nowhere in the grid")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestCloseAllChoreography(t *testing.T) {
	dev := &fakeDevice{}
	mover := &fakeMover{}
	n, _ := testNavigator(t, dev, mover)

	if !n.CloseAll() {
		t.Fatal("expected close-all to report success")
	}

	if got := dev.count("switcher"); got != 1 {
		t.Errorf("expected switcher opened once, got %d", got)
	}
	if got := dev.count("recenter"); got != 2 {
		t.Errorf("expected two recenters, got %d", got)
	}
	// 5 app rows + force quit + confirm + dismiss.
	if got := dev.count("click"); got != 8 {
		t.Errorf("expected 8 clicks, got %d", got)
	}
	if len(mover.targets) != 8 {
		t.Errorf("expected 8 positioning moves, got %d", len(mover.targets))
	}
}

func TestCloseAllReportsMoveFailures(t *testing.T) {
	dev := &fakeDevice{}
	n, _ := testNavigator(t, dev, &fakeMover{fail: true})

	if n.CloseAll() {
		t.Error("expected close-all to report failure when targeting fails")
	}
	if got := dev.count("click"); got != 0 {
		t.Errorf("expected no clicks when targeting fails, got %d", got)
	}
}

func TestFindAppScansPages(t *testing.T) {
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1), ocrElement("Photos", 0.5)},
			{ocrElement("Browser", 0.1), ocrElement("Notes", 0.4)},
		},
	}
	n, cache := testNavigator(t, dev, &fakeMover{})

	x, y, found, err := n.FindApp("Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("expected app to be found")
	}
	if x != 500 || y != 500 {
		t.Errorf("expected icon center (500, 500), got (%d, %d)", x, y)
	}

	if page, ok := cache.Lookup("Notes"); !ok || page != 1 {
		t.Errorf("expected cache to place Notes on page 1, got (%d, %v)", page, ok)
	}
	if page, ok := cache.Lookup("Mail"); !ok || page != 0 {
		t.Errorf("expected cache to place Mail on page 0, got (%d, %v)", page, ok)
	}
}

func TestFindAppStopsAtRepeatedPage(t *testing.T) {
	// The grid has two distinct pages; scrolling past the last one keeps
	// showing it, which is the end-of-grid signal.
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1)},
			{ocrElement("Browser", 0.1)},
		},
	}
	n, _ := testNavigator(t, dev, &fakeMover{})

	_, _, found, err := n.FindApp("Chess")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected app not to be found")
	}
}

func TestFindAppUsesCachedPage(t *testing.T) {
	dev := &fakeDevice{
		pages: [][]core.Element{
			{ocrElement("Mail", 0.1)},
			{ocrElement("Notes", 0.4)},
		},
	}
	n, cache := testNavigator(t, dev, &fakeMover{})
	cache.Update("Notes", 1)

	x, y, found, err := n.FindApp("Notes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || x != 500 || y != 500 {
		t.Errorf("expected cached hit at (500, 500), got (%d, %d, %v)", x, y, found)
	}
}

func TestCacheFuzzyLookup(t *testing.T) {
	m := similarity.NewMatcher(similarity.DefaultRules())
	path := filepath.Join(t.TempDir(), "app_cache.yaml")
	c := LoadCache(path, m)

	c.Update("Settings", 2)
	if page, ok := c.Lookup("Setings"); !ok || page != 2 {
		t.Errorf("expected fuzzy hit on page 2, got (%d, %v)", page, ok)
	}
	if _, ok := c.Lookup("Calculator"); ok {
		t.Error("expected miss for unrelated name")
	}
}

func TestCacheStaleEntryIsCold(t *testing.T) {
	m := similarity.NewMatcher(similarity.DefaultRules())
	c := LoadCache(filepath.Join(t.TempDir(), "app_cache.yaml"), m)

	c.apps["Old App"] = Entry{Page: 1, LastSeen: time.Now().Add(-25 * time.Hour)}
	if _, ok := c.Lookup("Old App"); ok {
		t.Error("expected stale entry to miss")
	}
}

func TestCachePersistsVersionedSchema(t *testing.T) {
	m := similarity.NewMatcher(similarity.DefaultRules())
	path := filepath.Join(t.TempDir(), "app_cache.yaml")

	c := LoadCache(path, m)
	c.Update("Notes", 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected cache file written: %v", err)
	}
	if !strings.Contains(string(data), "version: 1") {
		t.Errorf("expected versioned schema, got:\n%s", data)
	}

	reloaded := LoadCache(path, m)
	if page, ok := reloaded.Lookup("Notes"); !ok || page != 3 {
		t.Errorf("expected reloaded cache to place Notes on page 3, got (%d, %v)", page, ok)
	}
}

func TestCacheRejectsUnknownVersion(t *testing.T) {
	m := similarity.NewMatcher(similarity.DefaultRules())
	path := filepath.Join(t.TempDir(), "app_cache.yaml")
	content := "version: 99\napps:\n  Foo:\n    page: 3\n    lastSeen: 2026-01-01T00:00:00Z\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c := LoadCache(path, m)
	if c.Len() != 0 {
		t.Errorf("expected empty cache for unknown schema version, got %d entries", c.Len())
	}
}

func TestCacheUpdateReplacesFuzzyKey(t *testing.T) {
	m := similarity.NewMatcher(similarity.DefaultRules())
	c := LoadCache(filepath.Join(t.TempDir(), "app_cache.yaml"), m)

	c.Update("Setings", 0)
	c.Update("Settings", 3)
	if c.Len() != 1 {
		t.Errorf("expected fuzzy-matching keys collapsed to one entry, got %d", c.Len())
	}
	if page, ok := c.Lookup("Settings"); !ok || page != 3 {
		t.Errorf("expected page 3 under corrected name, got (%d, %v)", page, ok)
	}
}
