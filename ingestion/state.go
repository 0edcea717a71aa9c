package ingestion

import "fmt"

// State is the lifecycle stage of one ingestion run.
type State string

const (
	StateIdle         State = "Idle"
	StateChecking     State = "Checking"
	StateSkipped      State = "Skipped"
	StateReprocessing State = "Reprocessing"
	StateChunking     State = "Chunking"
	StateExtracting   State = "Extracting"
	StateIndexing     State = "Indexing"
	StateLedgerUpdate State = "LedgerUpdate"
	StateDone         State = "Done"
	StateFailed       State = "Failed"
)

// transitions lists the legal successors of each non-terminal state, not
// counting Failed, which every non-terminal state may enter.
var transitions = map[State][]State{
	StateIdle:         {StateChecking},
	StateChecking:     {StateSkipped, StateReprocessing},
	StateReprocessing: {StateChunking},
	StateChunking:     {StateExtracting},
	StateExtracting:   {StateIndexing},
	StateIndexing:     {StateLedgerUpdate},
	StateLedgerUpdate: {StateDone},
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSkipped || s == StateDone || s == StateFailed
}

// Succeeded reports whether s is a successful terminal state.
func (s State) Succeeded() bool {
	return s == StateSkipped || s == StateDone
}

func (s State) String() string {
	return string(s)
}

// checkTransition returns ErrInvalidTransition if from cannot move to to.
func checkTransition(from, to State) error {
	if from.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, from)
	}
	if to == StateFailed {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
