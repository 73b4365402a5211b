package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/summary"
)

type startSessionRequest struct {
	LegacyID  string `json:"legacyId"`
	PersonaID string `json:"personaId"`
}

type advancePhaseRequest struct {
	Phase            models.Phase             `json:"phase"`
	WritingStyle     *models.WritingStyle     `json:"writingStyle,omitempty"`
	LengthPreference *models.LengthPreference `json:"lengthPreference,omitempty"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type reviseRequest struct {
	Instruction string `json:"instruction"`
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// writeServiceError maps domain errors onto HTTP statuses. Invalid phase
// transitions are 422: the request was well-formed but the session's state
// machine forbids it. Rejected caller input is 400, never 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var transition *models.StateTransitionError
	var invalid services.ValidationError
	switch {
	case errors.As(err, &transition):
		writeError(w, http.StatusUnprocessableEntity, transition.Error())
	case errors.Is(err, repositories.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrSessionTerminal),
		errors.Is(err, services.ErrSummaryInFlight),
		errors.Is(err, services.ErrDraftMissing),
		errors.Is(err, services.ErrNoRetryTarget):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNotReady),
		errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *models.EvolutionSession {
	session, err := s.svcs.Evolution.Get(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return nil
	}
	return session
}

// --- session lifecycle ---

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	session, err := s.svcs.Evolution.Start(r.Context(), r.PathValue("storyID"), req.LegacyID, req.PersonaID)
	if errors.Is(err, repositories.ErrActiveSessionConflict) {
		// The existing active session rides along so the client can resume
		// it instead of starting over.
		writeJSON(w, http.StatusConflict, session)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.svcs.Evolution.Active(r.Context(), r.PathValue("storyID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if session == nil {
		writeError(w, http.StatusNotFound, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if session := s.session(w, r); session != nil {
		writeJSON(w, http.StatusOK, session)
	}
}

func (s *Server) handleAdvancePhase(w http.ResponseWriter, r *http.Request) {
	var req advancePhaseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := &services.AdvanceParams{
		WritingStyle:     req.WritingStyle,
		LengthPreference: req.LengthPreference,
	}
	session, err := s.svcs.Evolution.AdvancePhase(r.Context(), r.PathValue("sessionID"), req.Phase, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	session, content, err := s.svcs.Evolution.Accept(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": session, "content": content})
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	session, err := s.svcs.Evolution.Discard(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	s.svcs.Conversations.Teardown(session.ConversationID)
	s.svcs.Drafts.Teardown(session.ID)
	writeJSON(w, http.StatusOK, session)
}

// --- summary ---

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	text, err := s.svcs.Summaries.Generate(r.Context(), session)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": text,
		"blocks":  summary.Parse(text),
	})
}

// --- conversation ---

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	messages, err := s.svcs.Conversations.History(r.Context(), session.ConversationID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	ready, err := s.svcs.Conversations.ReadyToSummarize(r.Context(), session)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	var req sendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	bridge := newSSEBridge()
	ch, err := s.svcs.Conversations.SendMessage(r.Context(), session, req.Text, bridge.handlers())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ch == nil {
		// A reply is already streaming for this conversation.
		writeError(w, http.StatusConflict, "a reply is already streaming")
		return
	}
	bridge.serve(w, r, ch)
}

func (s *Server) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	bridge := newSSEBridge()
	ch, err := s.svcs.Conversations.RetryLast(r.Context(), session, bridge.handlers())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ch == nil {
		// A nil channel means a reply is still in flight; a conversation
		// with no failed turn surfaces as ErrNoRetryTarget above.
		writeError(w, http.StatusConflict, "a reply is already streaming")
		return
	}
	bridge.serve(w, r, ch)
}

// --- drafting ---

func (s *Server) handleGenerateDraft(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	bridge := newSSEBridge()
	ch, err := s.svcs.Drafts.GenerateDraft(r.Context(), session, bridge.handlers())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusConflict, "a draft is already streaming")
		return
	}
	bridge.serve(w, r, ch)
}

func (s *Server) handleRevise(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	var req reviseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Instruction == "" {
		writeError(w, http.StatusBadRequest, "instruction is required")
		return
	}
	bridge := newSSEBridge()
	ch, err := s.svcs.Drafts.Revise(r.Context(), session, req.Instruction, bridge.handlers())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ch == nil {
		writeError(w, http.StatusConflict, "a revision is already streaming")
		return
	}
	bridge.serve(w, r, ch)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.svcs.Drafts.Versions(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// --- model configuration ---

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	groups, err := s.models.ListModelGroups()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleSetModelEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeBody(w, r, &req) {
		return
	}
	model, err := s.models.SetModelEnabled(r.Context(), r.PathValue("modelKey"), req.Enabled)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}
