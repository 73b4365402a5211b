package workflow

import "evermore/internal/models"

// IndicatorEntry is one segment of the phase progress header.
type IndicatorEntry struct {
	Phase     models.Phase
	Label     string
	Current   bool
	Completed bool
	Navigable bool
}

var phaseLabels = map[models.Phase]string{
	models.PhaseElicitation:    "Chat",
	models.PhaseSummary:        "Summary",
	models.PhaseStyleSelection: "Style",
	models.PhaseDrafting:       "Draft",
	models.PhaseReview:         "Review",
}

// Indicator renders the linear phase header for the current session.
// Completed earlier phases are navigation targets only when the state
// machine permits jumping back to them from the current phase; drafting is
// never a target, and nothing is navigable in a terminal session or while
// a request or stream is in flight.
func (w *Workflow) Indicator() []IndicatorEntry {
	w.mu.Lock()
	session := w.session
	busy := w.streaming || w.advancing || w.summarizing || w.accepting
	w.mu.Unlock()
	if session == nil {
		return nil
	}

	current := session.Phase
	entries := make([]IndicatorEntry, 0, 5)
	for _, phase := range []models.Phase{
		models.PhaseElicitation,
		models.PhaseSummary,
		models.PhaseStyleSelection,
		models.PhaseDrafting,
		models.PhaseReview,
	} {
		entry := IndicatorEntry{
			Phase:     phase,
			Label:     phaseLabels[phase],
			Current:   phase == current && !current.Terminal(),
			Completed: phase.Order() < current.Order() || current.Terminal(),
		}
		entry.Navigable = entry.Completed &&
			!busy &&
			!current.Terminal() &&
			!phase.Transient() &&
			models.CanTransition(current, phase)
		entries = append(entries, entry)
	}
	return entries
}

// NavigateBack jumps to an earlier completed phase via the indicator.
func (w *Workflow) NavigateBack(target models.Phase) error {
	for _, entry := range w.Indicator() {
		if entry.Phase == target && entry.Navigable {
			return w.advance(target, nil)
		}
	}
	return &models.StateTransitionError{From: w.Session().Phase, To: target}
}
