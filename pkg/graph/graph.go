// Package graph owns the discovered UI states, the transitions between
// them, the dead-element blacklist, and the designated home state.
package graph

import (
	"sync"
	"time"

	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/logger"
	"github.com/probelab-dev/uiscout/pkg/similarity"
)

// Edge is a directed transition between two state fingerprints, carrying the
// element whose click triggered it. Edges are never deleted; repeats bump
// the counter.
type Edge struct {
	FromFingerprint string
	ToFingerprint   string
	Trigger         core.Element
	TraversalCount  int
	LastTraversed   time.Time
}

type edgeKey struct {
	from string
	to   string
}

type deadKey struct {
	fingerprint string
	elementID   string
}

// Graph deduplicates states via fuzzy equivalence and records transitions.
// The exploration engine is the single writer; the RWMutex exists so that
// progress readers (CLI status printing) can observe stats mid-run.
type Graph struct {
	mu       sync.RWMutex
	nodes    []*core.State
	edges    map[edgeKey]*Edge
	edgeKeys []edgeKey // insertion order, for stable export
	dead     map[deadKey]struct{}
	home     *core.State
	matcher  *similarity.Matcher
}

// New creates an empty graph using the given matcher for deduplication.
func New(matcher *similarity.Matcher) *Graph {
	return &Graph{
		edges:   make(map[edgeKey]*Edge),
		dead:    make(map[deadKey]struct{}),
		matcher: matcher,
	}
}

// AddIfNew inserts the state unless an equivalent one already exists.
// Returns true when the state was added.
func (g *Graph) AddIfNew(s *core.State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.findEquivalentLocked(s) != nil {
		return false
	}
	g.nodes = append(g.nodes, s)
	logger.Debug("graph: added state %s (%d total)", shortFP(s.Fingerprint), len(g.nodes))
	return true
}

// FindEquivalent returns the stored state the given one fuzzy-matches, or
// nil when it is a new state. A nil result is a normal outcome, not an
// error.
func (g *Graph) FindEquivalent(s *core.State) *core.State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findEquivalentLocked(s)
}

func (g *Graph) findEquivalentLocked(s *core.State) *core.State {
	for _, existing := range g.nodes {
		if g.matcher.StatesEqual(s, existing) {
			return existing
		}
	}
	return nil
}

// AddEdge records a transition from one state to another via the given
// element, creating the edge or incrementing its traversal counter.
func (g *Graph) AddEdge(from, to *core.State, trigger core.Element) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := edgeKey{from: from.Fingerprint, to: to.Fingerprint}
	if e, ok := g.edges[key]; ok {
		e.TraversalCount++
		e.LastTraversed = time.Now()
		return
	}
	g.edges[key] = &Edge{
		FromFingerprint: key.from,
		ToFingerprint:   key.to,
		Trigger:         trigger,
		TraversalCount:  1,
		LastTraversed:   time.Now(),
	}
	g.edgeKeys = append(g.edgeKeys, key)
	logger.Debug("graph: edge %s -> %s via %q",
		shortFP(key.from), shortFP(key.to), trigger.Content)
}

// MarkDead permanently excludes the (state, element) pair from future click
// attempts. Entries are write-once and survive app restarts.
func (g *Graph) MarkDead(fingerprint, elementID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dead[deadKey{fingerprint, elementID}] = struct{}{}
	logger.Info("graph: marked element %s in state %s as dead", elementID, shortFP(fingerprint))
}

// IsDead reports whether the (state, element) pair is blacklisted.
func (g *Graph) IsDead(fingerprint, elementID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.dead[deadKey{fingerprint, elementID}]
	return ok
}

// SetHome designates the state captured before the target application
// opened. Set once at startup; used only for exit detection.
func (g *Graph) SetHome(s *core.State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.home = s
	logger.Info("graph: home state set (%s)", shortFP(s.Fingerprint))
}

// IsHome reports whether the given state fuzzy-matches the home state.
func (g *Graph) IsHome(s *core.State) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.home == nil {
		return false
	}
	return g.matcher.StatesEqual(s, g.home)
}

// UnexploredStates returns the states that still hold at least one non-dead
// unexplored element.
func (g *Graph) UnexploredStates() []*core.State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*core.State
	for _, s := range g.nodes {
		if s == g.home {
			// The home screen is exit territory, never an exploration target.
			continue
		}
		for _, e := range s.UnexploredElements() {
			if _, dead := g.dead[deadKey{s.Fingerprint, e.ID}]; !dead {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// StateCount returns the number of deduplicated states.
func (g *Graph) StateCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Stats summarizes graph coverage.
type Stats struct {
	States      int     `json:"states"`
	Edges       int     `json:"edges"`
	Buttons     int     `json:"buttons"`
	DeadButtons int     `json:"deadButtons"`
	ProgressPct float64 `json:"progressPct"`
}

// Stats returns counts and the percentage of elements already explored.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var total, unexplored int
	for _, s := range g.nodes {
		total += len(s.Elements)
		unexplored += s.UnexploredCount()
	}

	st := Stats{
		States:      len(g.nodes),
		Edges:       len(g.edges),
		Buttons:     total,
		DeadButtons: len(g.dead),
	}
	if total > 0 {
		st.ProgressPct = float64(total-unexplored) / float64(total) * 100
	}
	return st
}

func shortFP(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}
