package timeline

import "errors"

var (
	// ErrAlreadyDecided signals an attempt to re-decide a terminal gate or form.
	ErrAlreadyDecided = errors.New("timeline: already decided")
	// ErrInvalidState signals a stage operation attempted outside its precondition
	// (gate not accepted, or the ledger is already exhausted).
	ErrInvalidState = errors.New("timeline: invalid state for operation")
)

// NewStages builds the six pending ledger entries from the proposed amounts,
// ordered by StageOrder.
func NewStages(amounts map[StageKey]int64) []Stage {
	stages := make([]Stage, 0, len(StageOrder))
	for _, key := range StageOrder {
		stages = append(stages, Stage{Key: key, Amount: amounts[key], Status: StagePending})
	}
	return stages
}

// ActiveStage returns the currently active stage. At most one stage is ever
// active; the scan walks the fixed order and returns the first match.
func (t *Timeline) ActiveStage() (Stage, bool) {
	for _, s := range t.Stages {
		if s.Status == StageActive {
			return s, true
		}
	}
	return Stage{}, false
}

// NextStage returns the first pending stage, the one implicitly next to
// activate once the gate is accepted.
func (t *Timeline) NextStage() (Stage, bool) {
	for _, s := range t.Stages {
		if s.Status == StagePending {
			return s, true
		}
	}
	return Stage{}, false
}

// AcceptGate transitions the gate from pending to accepted and activates the
// first stage. The receiver is not mutated; callers persist the returned
// value conditioned on the version they read.
func (t Timeline) AcceptGate() (Timeline, error) {
	if t.Acceptance != AcceptancePending {
		return Timeline{}, ErrAlreadyDecided
	}

	out := t
	out.Acceptance = AcceptanceAccepted
	out.Stages = cloneStages(t.Stages)
	for i := range out.Stages {
		if out.Stages[i].Status == StagePending {
			out.Stages[i].Status = StageActive
			break
		}
	}
	return out, nil
}

// RejectGate transitions the gate from pending to rejected. All stages are
// marked rejected; a rejected timeline is terminal and re-proposal requires
// a new record.
func (t Timeline) RejectGate() (Timeline, error) {
	if t.Acceptance != AcceptancePending {
		return Timeline{}, ErrAlreadyDecided
	}

	out := t
	out.Acceptance = AcceptanceRejected
	out.Stages = cloneStages(t.Stages)
	for i := range out.Stages {
		out.Stages[i].Status = StageRejected
	}
	return out, nil
}

// Advance completes the active stage and activates the next one in the fixed
// order. Advancing past the final stage leaves every stage completed. Fails
// with ErrInvalidState when the gate is not accepted or no stage is active.
func (t Timeline) Advance() (Timeline, error) {
	if t.Acceptance != AcceptanceAccepted {
		return Timeline{}, ErrInvalidState
	}

	active := -1
	for i, s := range t.Stages {
		if s.Status == StageActive {
			active = i
			break
		}
	}
	if active < 0 {
		return Timeline{}, ErrInvalidState
	}

	out := t
	out.Stages = cloneStages(t.Stages)
	out.Stages[active].Status = StageCompleted
	if active+1 < len(out.Stages) {
		out.Stages[active+1].Status = StageActive
	}
	return out, nil
}

func cloneStages(stages []Stage) []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}
