package core

// Capability interfaces consumed by the exploration core. Implementations
// live outside this module (device agents, detector services); the engine
// only depends on these contracts.

// Actuator drives the physical pointer and keyboard channel. All calls are
// synchronous and bounded-latency; implementations own the 15s command
// deadline and reset-retry policy.
type Actuator interface {
	// MoveRelative moves the pointer by raw actuator units.
	MoveRelative(dx, dy int) error

	// Scroll scrolls by raw actuator units.
	Scroll(dx, dy int) error

	// Click presses a pointer button (1 = primary).
	Click(button int) error

	// TypeText injects a text string. Implementations bound the per-command
	// length; callers chunk longer strings.
	TypeText(s string) error

	// SpecialKey presses a named key (ENTER, ESC, ...).
	SpecialKey(name string) error

	// Keypress sends a named key combination or device action.
	Keypress(action string) error

	// OpenSwitcher opens the application switcher overlay.
	OpenSwitcher() error

	// Recenter recenters the headset view on the pointer.
	Recenter() error
}

// Frame is one captured video frame. Width and Height are the frame
// dimensions in pixels; Path points at the stored image when the capture
// source archives frames to disk.
type Frame struct {
	Image  []byte
	Path   string
	Width  int
	Height int
}

// FrameCapture produces one fresh frame per call. No pipelining: the frame
// reflects the screen after the previous actuator command settled.
type FrameCapture interface {
	CaptureFrame() (*Frame, error)
}

// ElementDetector extracts UI elements from a frame. An empty result is not
// an error; it means zero interactive elements on this frame.
type ElementDetector interface {
	Detect(f *Frame) ([]Element, error)
}

// PointerLocator finds the pointer in a frame. found is false when the
// pointer is not visible; that alone is not an error.
type PointerLocator interface {
	Locate(f *Frame) (pos Point, found bool, err error)
}

// CredentialClassifier decides whether a frame shows a credential prompt.
type CredentialClassifier interface {
	IsCredentialPrompt(f *Frame) (bool, error)
}

// MetricsSink receives exploration counters and artifacts. Implementations
// must never block the control loop; slow or failing sinks drop data.
type MetricsSink interface {
	RecordStateFound()
	RecordStateExplored()
	RecordElementsFound(n int)
	RecordElementExplored()
	RecordMoveSuccess(accuracy float64)
	RecordMoveFailure()
	SaveStateImage(stateIndex int, f *Frame)
	LogSummary(extra string)
}

// NopMetrics is a MetricsSink that discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordStateFound()          {}
func (NopMetrics) RecordStateExplored()       {}
func (NopMetrics) RecordElementsFound(int)    {}
func (NopMetrics) RecordElementExplored()     {}
func (NopMetrics) RecordMoveSuccess(float64)  {}
func (NopMetrics) RecordMoveFailure()         {}
func (NopMetrics) SaveStateImage(int, *Frame) {}
func (NopMetrics) LogSummary(string)          {}
