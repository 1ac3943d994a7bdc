package core

// MoveStatus classifies the outcome of a pointer move.
type MoveStatus int

const (
	MoveConverged MoveStatus = iota // pointer reached the target within tolerance
	MoveFailed                      // command failure or attempt ceiling exceeded
	MoveStuck                       // pointer stopped responding to move commands
	MoveBlocked                     // credential prompt appeared; unsafe to retry
)

// String returns the string representation of MoveStatus.
func (s MoveStatus) String() string {
	switch s {
	case MoveConverged:
		return "converged"
	case MoveFailed:
		return "failed"
	case MoveStuck:
		return "stuck"
	case MoveBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MoveResult is the outcome of a MoveTo operation.
type MoveResult struct {
	Status MoveStatus

	// Final observed pointer position. Valid only when PositionKnown is set;
	// a lost pointer leaves the fields zero.
	FinalX, FinalY int
	PositionKnown  bool

	// Accuracy is the final offset relative to screen size, in percent.
	// Populated only on convergence.
	Accuracy float64

	Attempts int
	Err      error
}

// OK reports whether the move converged.
func (r *MoveResult) OK() bool {
	return r.Status == MoveConverged
}

// Point is a pixel position on the captured frame.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}
