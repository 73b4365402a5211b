package models

import "fmt"

// Phase is one discrete stage of the story evolution workflow.
type Phase string

const (
	PhaseElicitation    Phase = "elicitation"
	PhaseSummary        Phase = "summary"
	PhaseStyleSelection Phase = "style_selection"
	PhaseDrafting       Phase = "drafting"
	PhaseReview         Phase = "review"
	PhaseCompleted      Phase = "completed"
	PhaseDiscarded      Phase = "discarded"
)

// legalTransitions is the full edge table for AdvancePhase. The terminal
// phases are reachable only through Accept and Discard, never through a
// plain phase-advance request, so they have no entries here.
var legalTransitions = map[Phase][]Phase{
	PhaseElicitation:    {PhaseSummary},
	PhaseSummary:        {PhaseStyleSelection, PhaseElicitation},
	PhaseStyleSelection: {PhaseDrafting, PhaseSummary},
	PhaseDrafting:       {PhaseReview},
	PhaseReview:         {PhaseSummary, PhaseStyleSelection},
}

// phaseOrder positions the linear (non-terminal) phases for the indicator.
var phaseOrder = map[Phase]int{
	PhaseElicitation:    0,
	PhaseSummary:        1,
	PhaseStyleSelection: 2,
	PhaseDrafting:       3,
	PhaseReview:         4,
}

func (p Phase) Valid() bool {
	switch p {
	case PhaseElicitation, PhaseSummary, PhaseStyleSelection, PhaseDrafting,
		PhaseReview, PhaseCompleted, PhaseDiscarded:
		return true
	}
	return false
}

// Terminal reports whether the phase is completed or discarded.
// Terminal sessions are immutable.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseDiscarded
}

// Transient reports whether the phase finishes on its own rather than by a
// user decision. Transient phases are never navigation targets.
func (p Phase) Transient() bool {
	return p == PhaseDrafting
}

// Order returns the position of a non-terminal phase in the linear pipeline,
// or -1 for terminal phases.
func (p Phase) Order() int {
	if n, ok := phaseOrder[p]; ok {
		return n
	}
	return -1
}

// CanTransition reports whether AdvancePhase may move a session from one
// phase to another.
func CanTransition(from, to Phase) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// StateTransitionError reports a phase-advance request outside the legal
// edge table. It signals an integrity bug in the caller, not a user-facing
// condition; the session is left unchanged.
type StateTransitionError struct {
	From Phase
	To   Phase
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}
