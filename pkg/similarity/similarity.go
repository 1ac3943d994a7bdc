package similarity

import (
	"strings"

	"github.com/probelab-dev/uiscout/pkg/core"
)

const (
	// DefaultTolerance is the average-similarity threshold above which two
	// states are considered the same screen. Inherited from the tuned runs;
	// not validated for every UI, which is why it stays configurable.
	DefaultTolerance = 0.7

	// DefaultSizeRatioCutoff rejects state pairs whose element counts
	// differ by more than ~30% before any text comparison happens.
	DefaultSizeRatioCutoff = 0.7

	// semanticWeight blends group membership against raw edit similarity.
	semanticWeight = 0.7
)

// Matcher compares texts and states under a fixed rule set and thresholds.
// A Matcher is stateless and safe for concurrent use.
type Matcher struct {
	rules           Rules
	tolerance       float64
	sizeRatioCutoff float64
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithTolerance overrides the state-equality similarity threshold.
func WithTolerance(t float64) Option {
	return func(m *Matcher) { m.tolerance = t }
}

// WithSizeRatioCutoff overrides the element-count mismatch cutoff.
func WithSizeRatioCutoff(c float64) Option {
	return func(m *Matcher) { m.sizeRatioCutoff = c }
}

// NewMatcher builds a Matcher from the given rule tables.
func NewMatcher(rules Rules, opts ...Option) *Matcher {
	m := &Matcher{
		rules:           rules,
		tolerance:       DefaultTolerance,
		sizeRatioCutoff: DefaultSizeRatioCutoff,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tolerance returns the configured state-equality threshold.
func (m *Matcher) Tolerance() float64 { return m.tolerance }

// EditDistance computes the Levenshtein distance between two strings using
// the single-row dynamic-programming form.
func EditDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		cur := make([]int, 0, len(rb)+1)
		cur = append(cur, i+1)
		for j, cb := range rb {
			ins := prev[j+1] + 1
			del := cur[j] + 1
			sub := prev[j]
			if ca != cb {
				sub++
			}
			cur = append(cur, min3(ins, del, sub))
		}
		prev = cur
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// TextSimilarity scores two texts in [0,1], tolerant of OCR noise.
// Both inputs are treated identically, so the result is symmetric.
func (m *Matcher) TextSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}

	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}

	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0.0
	}

	score := func(x, y string) float64 {
		return 1.0 - float64(EditDistance(x, y))/float64(maxLen)
	}

	best := score(a, b)

	// Re-score under each substitution; keep the most charitable reading.
	try := func(sub Substitution) {
		aAlt := strings.ReplaceAll(a, sub.From, sub.To)
		bAlt := strings.ReplaceAll(b, sub.From, sub.To)
		if aAlt == a && bAlt == b {
			return
		}
		if s := score(aAlt, bAlt); s > best {
			best = s
		}
	}
	for _, sub := range m.rules.Confusables {
		try(sub)
	}
	for _, sub := range m.rules.MergePatterns {
		try(sub)
	}

	if m.sameSemanticGroup(a, b) {
		return semanticWeight*1.0 + (1-semanticWeight)*best
	}
	return best
}

func (m *Matcher) sameSemanticGroup(a, b string) bool {
	for _, group := range m.rules.SemanticGroups {
		inA, inB := false, false
		for _, w := range group {
			if w == a {
				inA = true
			}
			if w == b {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}

// StatesEqual decides whether two states show the same screen. Two
// empty-element states are always equal; an empty paired with a non-empty
// never is. States whose element counts differ by more than the size-ratio
// cutoff are unequal regardless of text. Otherwise each element of s1 is
// scored against its best match in s2 (greedy, not a bipartite optimum) and
// the average is compared to the tolerance.
func (m *Matcher) StatesEqual(s1, s2 *core.State) bool {
	n1 := len(s1.Elements)
	n2 := len(s2.Elements)

	if n1 == 0 && n2 == 0 {
		return true
	}
	if n1 == 0 || n2 == 0 {
		return false
	}

	minN, maxN := n1, n2
	if minN > maxN {
		minN, maxN = maxN, minN
	}
	if float64(minN)/float64(maxN) < m.sizeRatioCutoff {
		return false
	}

	var total float64
	for _, e1 := range s1.Elements {
		var best float64
		for _, e2 := range s2.Elements {
			if s := m.TextSimilarity(e1.Content, e2.Content); s > best {
				best = s
				if best == 1.0 {
					break
				}
			}
		}
		total += best
	}

	return total/float64(n1) >= m.tolerance
}
