package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

func newTestGraph() *Graph {
	return New(similarity.NewMatcher(similarity.DefaultRules()))
}

func mkState(contents ...string) *core.State {
	elems := make([]core.Element, len(contents))
	for i, c := range contents {
		elems[i] = core.Element{
			ID:      fmt.Sprintf("%d", i),
			Content: c,
			BBox: core.BBox{
				XMin: 0.1, YMin: 0.1 * float64(i+1),
				XMax: 0.3, YMax: 0.1*float64(i+1) + 0.05,
			},
			Interactive: true,
			Source:      "ocr",
		}
	}
	return core.NewState(elems, 1000, 1000)
}

func TestAddIfNewIdempotent(t *testing.T) {
	g := newTestGraph()

	s1 := mkState("Settings", "Help", "Back")
	require.True(t, g.AddIfNew(s1))

	// The same frame classified again must not create a second node, even
	// with OCR noise on the contents.
	s2 := mkState("Setings", "Help", "Back")
	assert.False(t, g.AddIfNew(s2))
	assert.Equal(t, 1, g.StateCount())
}

func TestFindEquivalent(t *testing.T) {
	g := newTestGraph()
	s1 := mkState("Library", "Store", "Profile")
	g.AddIfNew(s1)

	found := g.FindEquivalent(mkState("Library", "Store", "Profile"))
	require.NotNil(t, found)
	assert.Equal(t, s1.Fingerprint, found.Fingerprint)

	assert.Nil(t, g.FindEquivalent(mkState("Completely", "Different", "Screen")))
}

func TestAddEdgeIncrements(t *testing.T) {
	g := newTestGraph()
	a := mkState("Home", "Play", "Quit")
	b := mkState("Level Select", "Back")
	g.AddIfNew(a)
	g.AddIfNew(b)

	trigger := a.Elements[0]
	g.AddEdge(a, b, trigger)
	g.AddEdge(a, b, trigger)

	snap := g.Snapshot("")
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, 2, snap.Edges[0].TraversalCount)
	assert.Equal(t, trigger.Content, snap.Edges[0].TriggerContent)
}

func TestDeadElements(t *testing.T) {
	g := newTestGraph()
	s := mkState("Login", "Exit")
	g.AddIfNew(s)

	assert.False(t, g.IsDead(s.Fingerprint, "0"))
	g.MarkDead(s.Fingerprint, "0")
	assert.True(t, g.IsDead(s.Fingerprint, "0"))
	assert.False(t, g.IsDead(s.Fingerprint, "1"))

	// Marking twice is harmless.
	g.MarkDead(s.Fingerprint, "0")
	assert.Equal(t, 1, g.Stats().DeadButtons)
}

func TestHomeState(t *testing.T) {
	g := newTestGraph()
	home := mkState("App One", "App Two", "Settings")

	assert.False(t, g.IsHome(home), "no home set yet")

	g.SetHome(home)
	assert.True(t, g.IsHome(mkState("App One", "App Two", "Settings")))
	assert.False(t, g.IsHome(mkState("In", "Game", "Menu")))
}

func TestUnexploredStates(t *testing.T) {
	g := newTestGraph()
	a := mkState("One", "Two")
	b := mkState("Alpha", "Beta")
	g.AddIfNew(a)
	g.AddIfNew(b)

	assert.Len(t, g.UnexploredStates(), 2)

	// Drain a's queue entirely.
	for a.NextUnexplored() != nil {
	}
	assert.Len(t, g.UnexploredStates(), 1)

	// Blacklist all of b's remaining elements; b no longer counts.
	for _, e := range b.UnexploredElements() {
		g.MarkDead(b.Fingerprint, e.ID)
	}
	assert.Empty(t, g.UnexploredStates())
}

func TestStats(t *testing.T) {
	g := newTestGraph()
	assert.Equal(t, Stats{}, g.Stats(), "empty graph stats should be zero")

	a := mkState("One", "Two")
	b := mkState("Alpha", "Beta")
	g.AddIfNew(a)
	g.AddIfNew(b)
	g.AddEdge(a, b, a.Elements[0])

	a.NextUnexplored()

	st := g.Stats()
	assert.Equal(t, 2, st.States)
	assert.Equal(t, 1, st.Edges)
	assert.Equal(t, 4, st.Buttons)
	assert.InDelta(t, 25.0, st.ProgressPct, 0.01)
}

func TestSnapshotRoundTrip(t *testing.T) {
	g := newTestGraph()
	a := mkState("Home", "Play")
	b := mkState("Pause", "Resume")
	g.AddIfNew(a)
	g.AddIfNew(b)
	g.AddEdge(a, b, a.Elements[0])
	g.MarkDead(a.Fingerprint, "1")
	a.NextUnexplored()

	path := filepath.Join(t.TempDir(), "state_graph.json")
	require.NoError(t, g.WriteSnapshot(path, "run-123"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))

	assert.Equal(t, "run-123", snap.RunID)
	assert.Equal(t, 2, snap.Stats.States)
	require.Len(t, snap.States, 2)
	assert.Equal(t, 2, snap.States[0].ButtonCount)
	assert.Equal(t, 1, snap.States[0].UnexploredCount)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, 0, snap.Edges[0].FromIndex)
	assert.Equal(t, 1, snap.Edges[0].ToIndex)
	require.Len(t, snap.DeadButtons, 1)
	assert.Equal(t, a.Fingerprint, snap.DeadButtons[0][0])
}
