package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"evermore/internal/events"
	"evermore/internal/models"
	"evermore/internal/repositories"
)

// AdvanceParams carries the optional session fields a phase-advance request
// may set alongside the phase itself.
type AdvanceParams struct {
	WritingStyle     *models.WritingStyle
	LengthPreference *models.LengthPreference
}

// EvolutionService owns the session state machine: it validates every
// requested transition against the legal edge table. The one phase write it
// does not make itself is drafting -> review, which the draft pipeline
// commits atomically with the finished version's references.
type EvolutionService interface {
	Startup(ctx context.Context)
	Start(ctx context.Context, storyID, legacyID, personaID string) (*models.EvolutionSession, error)
	Active(ctx context.Context, storyID string) (*models.EvolutionSession, error)
	Get(ctx context.Context, sessionID string) (*models.EvolutionSession, error)
	AdvancePhase(ctx context.Context, sessionID string, target models.Phase, params *AdvanceParams) (*models.EvolutionSession, error)
	SetSummary(ctx context.Context, sessionID, text string) (*models.EvolutionSession, error)
	Accept(ctx context.Context, sessionID string) (*models.EvolutionSession, string, error)
	Discard(ctx context.Context, sessionID string) (*models.EvolutionSession, error)
}

type evolutionService struct {
	sessions repositories.EvolutionSessionRepository
	drafts   repositories.DraftVersionRepository
	stories  repositories.StoryRepository
	ctx      context.Context
}

func NewEvolutionService(
	sessions repositories.EvolutionSessionRepository,
	drafts repositories.DraftVersionRepository,
	stories repositories.StoryRepository,
) EvolutionService {
	return &evolutionService{sessions: sessions, drafts: drafts, stories: stories}
}

func (s *evolutionService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// Start creates a session in the elicitation phase bound to a fresh
// conversation. When the story already has a non-terminal session it is
// returned alongside ErrActiveSessionConflict so the caller can resume it.
func (s *evolutionService) Start(ctx context.Context, storyID, legacyID, personaID string) (*models.EvolutionSession, error) {
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return nil, ValidationError("story ID is required")
	}
	if _, err := s.stories.GetByID(ctx, storyID); err != nil {
		return nil, err
	}

	existing, err := s.sessions.GetActiveByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, repositories.ErrActiveSessionConflict
	}

	session := &models.EvolutionSession{
		ID:             uuid.NewString(),
		StoryID:        storyID,
		LegacyID:       strings.TrimSpace(legacyID),
		PersonaID:      strings.TrimSpace(personaID),
		ConversationID: uuid.NewString(),
		Phase:          models.PhaseElicitation,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		// Lost a race with a concurrent start; hand back the winner.
		if err == repositories.ErrActiveSessionConflict {
			if winner, activeErr := s.sessions.GetActiveByStory(ctx, storyID); activeErr == nil && winner != nil {
				return winner, repositories.ErrActiveSessionConflict
			}
		}
		return nil, err
	}

	events.Emit(events.WithSession(ctx, session.ID), events.EvolutionEventPhase,
		events.NewPhase(string(session.Phase)))
	return session, nil
}

// Active returns the story's non-terminal session, or ErrNotFound.
func (s *evolutionService) Active(ctx context.Context, storyID string) (*models.EvolutionSession, error) {
	session, err := s.sessions.GetActiveByStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, repositories.ErrNotFound
	}
	return session, nil
}

func (s *evolutionService) Get(ctx context.Context, sessionID string) (*models.EvolutionSession, error) {
	if sessionID == "" {
		return nil, ValidationError("session ID is required")
	}
	return s.sessions.GetByID(ctx, sessionID)
}

// AdvancePhase validates the requested target against the current phase and
// persists the phase plus any parameters in one update. Illegal requests
// fail with *models.StateTransitionError and leave the session untouched.
func (s *evolutionService) AdvancePhase(ctx context.Context, sessionID string, target models.Phase, params *AdvanceParams) (*models.EvolutionSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}
	if !target.Valid() || !models.CanTransition(session.Phase, target) {
		return nil, &models.StateTransitionError{From: session.Phase, To: target}
	}

	updates := map[string]interface{}{"phase": target}
	if params != nil {
		if params.WritingStyle != nil {
			if !params.WritingStyle.Valid() {
				return nil, validationErrorf("invalid writing style %q", *params.WritingStyle)
			}
			updates["writing_style"] = *params.WritingStyle
		}
		if params.LengthPreference != nil {
			if !params.LengthPreference.Valid() {
				return nil, validationErrorf("invalid length preference %q", *params.LengthPreference)
			}
			updates["length_preference"] = *params.LengthPreference
		}
	}

	if target == models.PhaseDrafting {
		style := session.WritingStyle
		length := session.LengthPreference
		if params != nil && params.WritingStyle != nil {
			style = params.WritingStyle
		}
		if params != nil && params.LengthPreference != nil {
			length = params.LengthPreference
		}
		if style == nil || length == nil {
			return nil, ErrNotReady
		}
	}

	updated, err := s.sessions.UpdateByID(ctx, sessionID, updates)
	if err != nil {
		return nil, err
	}
	events.Emit(events.WithSession(ctx, sessionID), events.EvolutionEventPhase,
		events.NewPhase(string(target)))
	return updated, nil
}

// SetSummary persists the generated summary text on the session.
func (s *evolutionService) SetSummary(ctx context.Context, sessionID, text string) (*models.EvolutionSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}
	return s.sessions.UpdateByID(ctx, sessionID, map[string]interface{}{"summary_text": text})
}

// Accept promotes the latest reviewed draft to the story's canonical
// content and completes the session. Legal only from review.
func (s *evolutionService) Accept(ctx context.Context, sessionID string) (*models.EvolutionSession, string, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	if session.Phase.Terminal() {
		return nil, "", ErrSessionTerminal
	}
	if session.Phase != models.PhaseReview {
		return nil, "", &models.StateTransitionError{From: session.Phase, To: models.PhaseCompleted}
	}
	if session.DraftVersionID == nil {
		return nil, "", ErrDraftMissing
	}

	version, err := s.drafts.GetByID(ctx, *session.DraftVersionID)
	if err != nil {
		return nil, "", err
	}

	// Story content first: if it fails the session stays in review and the
	// action can be retried with no partial state change.
	if err := s.stories.UpdateContent(ctx, session.StoryID, version.Content); err != nil {
		return nil, "", err
	}
	updated, err := s.sessions.UpdateByID(ctx, sessionID, map[string]interface{}{"phase": models.PhaseCompleted})
	if err != nil {
		return nil, "", err
	}

	events.Emit(events.WithSession(ctx, sessionID), events.EvolutionEventPhase,
		events.NewPhase(string(models.PhaseCompleted)))
	return updated, version.Content, nil
}

// Discard abandons the session from any non-terminal phase. The story's
// prior content is left untouched.
func (s *evolutionService) Discard(ctx context.Context, sessionID string) (*models.EvolutionSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Phase.Terminal() {
		return nil, ErrSessionTerminal
	}

	updated, err := s.sessions.UpdateByID(ctx, sessionID, map[string]interface{}{"phase": models.PhaseDiscarded})
	if err != nil {
		return nil, err
	}
	events.Emit(events.WithSession(ctx, sessionID), events.EvolutionEventPhase,
		events.NewPhase(string(models.PhaseDiscarded)))
	return updated, nil
}
