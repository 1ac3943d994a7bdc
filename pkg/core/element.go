package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Element represents an interactive UI element reported by the detector.
// Elements are immutable: one is created per detector call and never changed.
type Element struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	BBox        BBox   `json:"bbox"`
	Interactive bool   `json:"interactivity"`
	Source      string `json:"source"` // detector that produced it (ocr, icon, ...)
}

// BBox is a normalized bounding box with fractional [0,1] coordinates.
type BBox struct {
	XMin float64 `json:"xMin"`
	YMin float64 `json:"yMin"`
	XMax float64 `json:"xMax"`
	YMax float64 `json:"yMax"`
}

// Center returns the pixel center of the box for the given screen size.
func (b BBox) Center(screenW, screenH int) (int, int) {
	x := (b.XMin + b.XMax) / 2 * float64(screenW)
	y := (b.YMin + b.YMax) / 2 * float64(screenH)
	return int(x), int(y)
}

// Center returns the pixel center of the element for the given screen size.
func (e Element) Center(screenW, screenH int) (int, int) {
	return e.BBox.Center(screenW, screenH)
}

// backKeywords are texts that likely identify a back/return element.
var backKeywords = []string{"back", "return", "previous", "close", "cancel"}

// State is an ordered snapshot of the elements visible on one screen.
// Elements are sorted by ascending distance to the screen center, and the
// same order seeds the unexplored queue. A State is never deleted from the
// graph; its queue is only drained.
type State struct {
	Elements    []Element
	Fingerprint string

	unexplored []Element
}

// NewState builds a State from detected elements. The screen size is needed
// to order elements by distance to the screen center.
func NewState(elements []Element, screenW, screenH int) *State {
	sorted := make([]Element, len(elements))
	copy(sorted, elements)

	cx := float64(screenW) / 2
	cy := float64(screenH) / 2
	dist := func(e Element) float64 {
		ex := (e.BBox.XMin + e.BBox.XMax) / 2 * float64(screenW)
		ey := (e.BBox.YMin + e.BBox.YMax) / 2 * float64(screenH)
		return math.Hypot(ex-cx, ey-cy)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return dist(sorted[i]) < dist(sorted[j])
	})

	queue := make([]Element, len(sorted))
	copy(queue, sorted)

	return &State{
		Elements:    sorted,
		Fingerprint: fingerprint(sorted),
		unexplored:  queue,
	}
}

// fingerprint derives a stable key from element contents and positions.
// The element list is re-sorted by content so the key does not depend on
// detection order.
func fingerprint(elements []Element) string {
	keys := make([]string, len(elements))
	for i, e := range elements {
		keys[i] = fmt.Sprintf("%s|%.4f,%.4f,%.4f,%.4f",
			e.Content, e.BBox.XMin, e.BBox.YMin, e.BBox.XMax, e.BBox.YMax)
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, ";")))
	return hex.EncodeToString(sum[:])
}

// HasUnexplored reports whether any element is still waiting to be visited.
func (s *State) HasUnexplored() bool {
	return len(s.unexplored) > 0
}

// NextUnexplored pops the nearest-to-center unexplored element, or nil.
func (s *State) NextUnexplored() *Element {
	if len(s.unexplored) == 0 {
		return nil
	}
	e := s.unexplored[0]
	s.unexplored = s.unexplored[1:]
	return &e
}

// UnexploredCount returns the number of elements not yet visited.
func (s *State) UnexploredCount() int {
	return len(s.unexplored)
}

// UnexploredElements returns a copy of the pending queue, nearest first.
func (s *State) UnexploredElements() []Element {
	out := make([]Element, len(s.unexplored))
	copy(out, s.unexplored)
	return out
}

// IsExplored reports whether the element with the given id has already been
// popped from the unexplored queue.
func (s *State) IsExplored(id string) bool {
	for _, e := range s.unexplored {
		if e.ID == id {
			return false
		}
	}
	return true
}

// ElementByID returns the element with the given id, or nil.
func (s *State) ElementByID(id string) *Element {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return &s.Elements[i]
		}
	}
	return nil
}

// BackElement returns an element that likely navigates back, or nil.
func (s *State) BackElement() *Element {
	for i := range s.Elements {
		content := strings.ToLower(s.Elements[i].Content)
		for _, kw := range backKeywords {
			if strings.Contains(content, kw) {
				return &s.Elements[i]
			}
		}
	}
	return nil
}
