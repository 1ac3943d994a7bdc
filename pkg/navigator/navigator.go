// Package navigator opens, closes, and restarts the target application
// through the actuator channel. It knows the launcher and app-switcher
// choreography and keeps a fuzzy-matched cache of launcher page locations.
package navigator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/probelab-dev/uiscout/pkg/config"
	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/logger"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

// Settle delays between actuator commands. The headset UI animates; acting
// before an animation finishes lands clicks on the wrong thing.
const (
	launcherSettle = 1 * time.Second
	chunkSettle    = 500 * time.Millisecond
	searchSettle   = 1 * time.Second
	confirmSettle  = 2 * time.Second
	appInitSettle  = 15 * time.Second
	switcherSettle = 4 * time.Second
	clickSettle    = 500 * time.Millisecond
	pageSettle     = 1 * time.Second
	closeSettle    = 2 * time.Second
)

// Fixed app-switcher layout. The switcher overlay renders at a stable
// position, so the close choreography targets absolute screen coordinates.
const (
	switcherRows     = 5
	switcherRowX     = 1495
	switcherFirstRow = 750
	switcherRowPitch = 80
	forceQuitX       = 1495
	forceQuitY       = 1150
	confirmX         = 1495
	confirmY         = 925
	dismissX         = 1240
	dismissY         = 500
)

// launcherAction is the keypress verb that toggles the name-based launcher.
const launcherAction = "LAUNCHER"

// appMatchThreshold is the text similarity above which a detected element
// counts as the app being searched for.
const appMatchThreshold = 0.8

// samePageThreshold detects the end of the launcher grid: two consecutive
// pages whose joined contents are this similar are the same page.
const samePageThreshold = 0.8

// pageScrollUnits is the scroll amount for one half page flip.
const pageScrollUnits = 80

// Mover positions the pointer on a target. Satisfied by pointer.Controller.
type Mover interface {
	MoveTo(targetX, targetY, tolerance int) *core.MoveResult
}

// Options tunes the navigator.
type Options struct {
	ChunkSize      int // max characters per TypeText command
	MaxSearchPages int
	MaxUnits       int
	ScreenWidth    int
	ScreenHeight   int
}

// OptionsFromConfig builds navigator options from the run configuration.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		ChunkSize:      c.Actuator.TextChunkSize,
		MaxSearchPages: c.Exploration.MaxSearchPages,
		MaxUnits:       c.Actuator.MaxUnits,
		ScreenWidth:    c.Screen.Width,
		ScreenHeight:   c.Screen.Height,
	}
}

// Navigator drives application lifecycle through the actuator.
type Navigator struct {
	opts     Options
	act      core.Actuator
	capture  core.FrameCapture
	detector core.ElementDetector
	mover    Mover
	matcher  *similarity.Matcher
	cache    *Cache

	sleep func(time.Duration)
}

// New creates a navigator. The cache may be shared with the CLI inspector.
func New(opts Options, act core.Actuator, capture core.FrameCapture,
	detector core.ElementDetector, mover Mover, matcher *similarity.Matcher, cache *Cache) *Navigator {
	return &Navigator{
		opts:     opts,
		act:      act,
		capture:  capture,
		detector: detector,
		mover:    mover,
		matcher:  matcher,
		cache:    cache,
		sleep:    time.Sleep,
	}
}

// Open launches the app by name through the launcher: open it, type the
// name (chunked when it exceeds the per-command limit), confirm, dismiss,
// then wait for the app to initialize. When the screen content is
// unchanged after the typed launch, the search missed and Open falls back
// to locating the icon in the launcher grid.
func (n *Navigator) Open(name string) error {
	logger.Info("navigator: opening app %q", name)

	before, berr := n.detectCurrent()
	if berr != nil {
		logger.Warn("navigator: baseline capture failed: %v", berr)
	}

	if err := n.act.Keypress(launcherAction); err != nil {
		return fmt.Errorf("open launcher: %w", err)
	}
	n.sleep(launcherSettle)

	if err := n.typeChunked(name); err != nil {
		return fmt.Errorf("type app name: %w", err)
	}
	n.sleep(searchSettle)

	if err := n.act.SpecialKey("ENTER"); err != nil {
		return fmt.Errorf("confirm launch: %w", err)
	}
	n.sleep(confirmSettle)

	if err := n.act.Keypress(launcherAction); err != nil {
		return fmt.Errorf("dismiss launcher: %w", err)
	}
	n.sleep(launcherSettle)

	if berr == nil {
		after, err := n.detectCurrent()
		if err == nil && samePage(n.matcher, after, before) {
			logger.Warn("navigator: typed launch left the screen unchanged, scanning grid for %q", name)
			return n.openFromGrid(name)
		}
	}

	n.sleep(appInitSettle)

	logger.Info("navigator: launch sequence for %q complete", name)
	return nil
}

// openFromGrid opens the launcher grid, locates the app icon through the
// location cache or a page scan, and clicks it.
func (n *Navigator) openFromGrid(name string) error {
	if err := n.act.Keypress(launcherAction); err != nil {
		return fmt.Errorf("open launcher: %w", err)
	}
	n.sleep(launcherSettle)

	x, y, found, err := n.FindApp(name)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("app %q not found in launcher grid", name)
	}

	if res := n.mover.MoveTo(x, y, 0); res.Status != core.MoveConverged {
		return fmt.Errorf("position on %q icon: %s (%v)", name, res.Status, res.Err)
	}
	if err := n.act.Click(1); err != nil {
		return fmt.Errorf("click %q icon: %w", name, err)
	}
	n.sleep(confirmSettle)
	n.sleep(appInitSettle)

	logger.Info("navigator: opened %q from the launcher grid", name)
	return nil
}

// typeChunked injects text in pieces no longer than the per-command limit.
func (n *Navigator) typeChunked(s string) error {
	runes := []rune(s)
	size := n.opts.ChunkSize
	if size <= 0 {
		size = len(runes)
	}
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if err := n.act.TypeText(string(runes[start:end])); err != nil {
			return err
		}
		if end < len(runes) {
			n.sleep(chunkSettle)
		}
	}
	return nil
}

// CloseAll runs the app-switcher close choreography: park the pointer,
// open the switcher, close each visible app row, force quit, confirm,
// and dismiss the switcher. Best effort; the return value reports whether
// every step was issued without an actuator failure.
func (n *Navigator) CloseAll() bool {
	logger.Info("navigator: closing all apps")
	m := n.opts.MaxUnits
	ok := true

	step := func(err error) {
		if err != nil {
			logger.Warn("navigator: close-all step failed: %v", err)
			ok = false
		}
	}

	step(n.act.MoveRelative(-m, -m)) // park top-left
	n.sleep(launcherSettle)
	step(n.act.OpenSwitcher())
	n.sleep(switcherSettle)
	step(n.act.Recenter())
	n.sleep(launcherSettle)
	step(n.act.MoveRelative(m, -m)) // pin top-right before targeting

	for i := 0; i < switcherRows; i++ {
		y := switcherFirstRow + i*switcherRowPitch
		if !n.clickAt(switcherRowX, y) {
			ok = false
			continue
		}
		n.sleep(clickSettle)
	}

	if !n.clickAt(forceQuitX, forceQuitY) {
		ok = false
	}
	n.sleep(clickSettle)
	if !n.clickAt(confirmX, confirmY) {
		ok = false
	}
	n.sleep(launcherSettle)

	step(n.act.Recenter())
	n.sleep(launcherSettle)
	if !n.clickAt(dismissX, dismissY) {
		ok = false
	}
	n.sleep(launcherSettle)

	if ok {
		logger.Info("navigator: close-all choreography complete")
	}
	return ok
}

// ForceQuitAll closes everything without discrimination. Same choreography
// as CloseAll; the distinction exists for the maintenance CLI.
func (n *Navigator) ForceQuitAll() bool {
	logger.Warn("navigator: force quitting all apps")
	return n.CloseAll()
}

// Restart closes everything and relaunches the app.
func (n *Navigator) Restart(name string) error {
	logger.Info("navigator: restarting app %q", name)
	if !n.CloseAll() {
		logger.Warn("navigator: close-all reported failures, launching anyway")
	}
	n.sleep(closeSettle)
	return n.Open(name)
}

// clickAt positions the pointer on an absolute target and clicks.
func (n *Navigator) clickAt(x, y int) bool {
	res := n.mover.MoveTo(x, y, 0)
	if !res.OK() {
		logger.Warn("navigator: could not reach (%d, %d): %s", x, y, res.Status)
		return false
	}
	if err := n.act.Click(1); err != nil {
		logger.Warn("navigator: click at (%d, %d) failed: %v", x, y, err)
		return false
	}
	return true
}

// FindApp locates an app icon in the launcher grid, trying the location
// cache before scanning pages. Returns the screen position of the icon.
func (n *Navigator) FindApp(name string) (x, y int, found bool, err error) {
	if page, ok := n.cache.Lookup(name); ok {
		logger.Debug("navigator: cache places %q on page %d", name, page)
		n.toFirstPage()
		for i := 0; i < page; i++ {
			n.nextPage()
			n.sleep(pageSettle)
		}
		if x, y, found, err = n.findOnCurrentPage(name); err != nil || found {
			return x, y, found, err
		}
		logger.Debug("navigator: cached page for %q was cold, scanning", name)
	}

	n.toFirstPage()
	return n.searchPages(name)
}

// searchPages scans launcher pages for the app, filling the cache with
// every OCR element seen along the way. The scan ends when a page repeats
// (end of grid) or the page bound is hit.
func (n *Navigator) searchPages(name string) (x, y int, found bool, err error) {
	var prev []core.Element

	for page := 0; page < n.opts.MaxSearchPages; page++ {
		elems, err := n.detectCurrent()
		if err != nil {
			return 0, 0, false, err
		}

		if samePage(n.matcher, elems, prev) {
			logger.Info("navigator: reached end of launcher pages at page %d", page)
			break
		}

		for _, e := range elems {
			if isOCR(e) {
				n.cache.Update(e.Content, page)
			}
		}

		for _, e := range elems {
			if !isOCR(e) {
				continue
			}
			if n.matcher.TextSimilarity(e.Content, name) > appMatchThreshold {
				px, py := e.Center(n.opts.ScreenWidth, n.opts.ScreenHeight)
				logger.Info("navigator: found %q on page %d at (%d, %d)", name, page, px, py)
				n.cache.Update(name, page)
				return px, py, true, nil
			}
		}

		prev = elems
		n.nextPage()
		n.sleep(pageSettle)
	}

	logger.Warn("navigator: app %q not found in launcher grid", name)
	return 0, 0, false, nil
}

// findOnCurrentPage looks for the app among the elements of the page the
// grid currently shows.
func (n *Navigator) findOnCurrentPage(name string) (x, y int, found bool, err error) {
	elems, err := n.detectCurrent()
	if err != nil {
		return 0, 0, false, err
	}
	for _, e := range elems {
		if !isOCR(e) {
			continue
		}
		if n.matcher.TextSimilarity(e.Content, name) > appMatchThreshold {
			px, py := e.Center(n.opts.ScreenWidth, n.opts.ScreenHeight)
			return px, py, true, nil
		}
	}
	return 0, 0, false, nil
}

func (n *Navigator) detectCurrent() ([]core.Element, error) {
	frame, err := n.capture.CaptureFrame()
	if err != nil {
		return nil, fmt.Errorf("capture frame: %w", err)
	}
	elems, err := n.detector.Detect(frame)
	if err != nil {
		return nil, fmt.Errorf("detect elements: %w", err)
	}
	return elems, nil
}

func (n *Navigator) nextPage() {
	for i := 0; i < 2; i++ {
		if err := n.act.Scroll(0, pageScrollUnits); err != nil {
			logger.Warn("navigator: page scroll failed: %v", err)
			return
		}
	}
}

func (n *Navigator) prevPage() {
	for i := 0; i < 2; i++ {
		if err := n.act.Scroll(0, -pageScrollUnits); err != nil {
			logger.Warn("navigator: page scroll failed: %v", err)
			return
		}
	}
}

// toFirstPage rewinds the grid by scrolling back past the page bound.
func (n *Navigator) toFirstPage() {
	for i := 0; i < n.opts.MaxSearchPages; i++ {
		n.prevPage()
	}
}

// samePage reports whether two element sets show the same page content,
// comparing joined sorted texts so element ordering does not matter.
func samePage(m *similarity.Matcher, current, previous []core.Element) bool {
	if len(previous) == 0 {
		return false
	}
	return m.TextSimilarity(joinedContents(current), joinedContents(previous)) > samePageThreshold
}

func joinedContents(elems []core.Element) string {
	contents := make([]string, len(elems))
	for i, e := range elems {
		contents[i] = e.Content
	}
	sort.Strings(contents)
	return strings.Join(contents, "")
}

func isOCR(e core.Element) bool {
	return strings.Contains(e.Source, "ocr")
}
