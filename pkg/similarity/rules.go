// Package similarity provides OCR-tolerant fuzzy text comparison and the
// state-equivalence check built on it. Everything here is pure: the rule
// tables are plain data injected into the matcher, so thresholds and rules
// can be tuned and tested independently.
package similarity

// Substitution rewrites every occurrence of From into To before re-scoring.
type Substitution struct {
	From string
	To   string
}

// Rules holds the fuzzy-matching rule tables.
type Rules struct {
	// Confusables are single-character OCR confusions, listed per direction.
	Confusables []Substitution

	// MergePatterns are multi-character sequences OCR tends to merge.
	MergePatterns []Substitution

	// SemanticGroups are sets of UI action words treated as equivalent.
	SemanticGroups [][]string
}

// DefaultRules returns the rule tables observed to cover common OCR noise on
// headset screen captures.
func DefaultRules() Rules {
	return Rules{
		Confusables: []Substitution{
			{"0", "o"}, {"o", "0"},
			{"1", "i"}, {"i", "1"},
			{"1", "l"}, {"l", "1"},
			{"l", "i"}, {"i", "l"},
			{"2", "z"}, {"z", "2"},
			{"5", "s"}, {"s", "5"},
			{"8", "b"}, {"b", "8"},
			{"9", "g"}, {"g", "9"},
		},
		MergePatterns: []Substitution{
			{"rn", "m"},
			{"cl", "d"},
			{"vv", "w"},
			{"nn", "m"},
			{"ii", "n"},
			{"il", "n"},
			{"li", "n"},
		},
		SemanticGroups: [][]string{
			{"back", "return", "previous", "close", "cancel"},
			{"next", "continue", "proceed"},
			{"ok", "confirm", "accept", "yes"},
			{"settings", "options", "preferences"},
			{"help", "support", "guide"},
		},
	}
}
