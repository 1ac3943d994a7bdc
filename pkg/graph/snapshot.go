package graph

import (
	"encoding/json"
	"os"
	"time"
)

// Snapshot is the JSON-serializable end-of-run export of the graph.
type Snapshot struct {
	RunID       string          `json:"runId,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Stats       Stats           `json:"stats"`
	States      []SnapshotState `json:"states"`
	Edges       []SnapshotEdge  `json:"edges"`
	DeadButtons [][2]string     `json:"deadButtons"`
}

// SnapshotState is one exported state entry.
type SnapshotState struct {
	Index           int              `json:"index"`
	Fingerprint     string           `json:"fingerprint"`
	ButtonCount     int              `json:"buttonCount"`
	UnexploredCount int              `json:"unexploredCount"`
	Buttons         []SnapshotButton `json:"buttons"`
}

// SnapshotButton is one exported element entry.
type SnapshotButton struct {
	ID       string     `json:"id"`
	Content  string     `json:"content"`
	BBox     [4]float64 `json:"bbox"`
	Source   string     `json:"source"`
	Explored bool       `json:"explored"`
}

// SnapshotEdge is one exported transition entry.
type SnapshotEdge struct {
	FromIndex      int       `json:"fromIndex"`
	ToIndex        int       `json:"toIndex"`
	TriggerContent string    `json:"triggerContent"`
	TriggerID      string    `json:"triggerId"`
	TraversalCount int       `json:"traversalCount"`
	LastTraversed  time.Time `json:"lastTraversed"`
}

// Snapshot exports the graph. The export is consistent: it is built under
// the read lock in one pass.
func (g *Graph) Snapshot(runID string) *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	indexByFP := make(map[string]int, len(g.nodes))
	for i, s := range g.nodes {
		indexByFP[s.Fingerprint] = i
	}

	snap := &Snapshot{
		RunID:       runID,
		GeneratedAt: time.Now(),
		States:      make([]SnapshotState, 0, len(g.nodes)),
		Edges:       make([]SnapshotEdge, 0, len(g.edges)),
		DeadButtons: make([][2]string, 0, len(g.dead)),
	}

	var total, unexplored int
	for i, s := range g.nodes {
		total += len(s.Elements)
		unexplored += s.UnexploredCount()

		entry := SnapshotState{
			Index:           i,
			Fingerprint:     s.Fingerprint,
			ButtonCount:     len(s.Elements),
			UnexploredCount: s.UnexploredCount(),
			Buttons:         make([]SnapshotButton, 0, len(s.Elements)),
		}
		for _, e := range s.Elements {
			entry.Buttons = append(entry.Buttons, SnapshotButton{
				ID:       e.ID,
				Content:  e.Content,
				BBox:     [4]float64{e.BBox.XMin, e.BBox.YMin, e.BBox.XMax, e.BBox.YMax},
				Source:   e.Source,
				Explored: s.IsExplored(e.ID),
			})
		}
		snap.States = append(snap.States, entry)
	}

	for _, key := range g.edgeKeys {
		e := g.edges[key]
		fromIdx, okFrom := indexByFP[e.FromFingerprint]
		toIdx, okTo := indexByFP[e.ToFingerprint]
		if !okFrom || !okTo {
			continue
		}
		snap.Edges = append(snap.Edges, SnapshotEdge{
			FromIndex:      fromIdx,
			ToIndex:        toIdx,
			TriggerContent: e.Trigger.Content,
			TriggerID:      e.Trigger.ID,
			TraversalCount: e.TraversalCount,
			LastTraversed:  e.LastTraversed,
		})
	}

	for key := range g.dead {
		snap.DeadButtons = append(snap.DeadButtons, [2]string{key.fingerprint, key.elementID})
	}

	snap.Stats = Stats{
		States:      len(g.nodes),
		Edges:       len(g.edges),
		Buttons:     total,
		DeadButtons: len(g.dead),
	}
	if total > 0 {
		snap.Stats.ProgressPct = float64(total-unexplored) / float64(total) * 100
	}

	return snap
}

// WriteSnapshot exports the graph as indented JSON at the given path.
func (g *Graph) WriteSnapshot(path, runID string) error {
	data, err := json.MarshalIndent(g.Snapshot(runID), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
