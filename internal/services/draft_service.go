package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"evermore/internal/events"
	"evermore/internal/llm/client"
	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/stream"
)

// DraftService produces draft text over the streaming channel: a fresh
// generation when the session enters drafting, and any number of revisions
// while it sits in review. Only completed streams commit a DraftVersion.
type DraftService interface {
	Startup(ctx context.Context)
	GenerateDraft(ctx context.Context, session *models.EvolutionSession, handlers stream.Handlers) (*stream.Channel, error)
	Revise(ctx context.Context, session *models.EvolutionSession, instruction string, handlers stream.Handlers) (*stream.Channel, error)
	LatestVersion(ctx context.Context, sessionID string) (*models.DraftVersion, error)
	Versions(ctx context.Context, sessionID string) ([]models.DraftVersion, error)
	Teardown(sessionID string)
	Shutdown()
}

type draftService struct {
	sessions repositories.EvolutionSessionRepository
	drafts   repositories.DraftVersionRepository
	stories  repositories.StoryRepository
	llm      TextStreamer
	ctx      context.Context

	slotMu sync.Mutex
	slots  map[string]*stream.Slot // sessionID+kind -> slot
}

func NewDraftService(
	sessions repositories.EvolutionSessionRepository,
	drafts repositories.DraftVersionRepository,
	stories repositories.StoryRepository,
	llm TextStreamer,
) DraftService {
	return &draftService{
		sessions: sessions,
		drafts:   drafts,
		stories:  stories,
		llm:      llm,
		slots:    make(map[string]*stream.Slot),
	}
}

func (s *draftService) Startup(ctx context.Context) {
	s.ctx = ctx
}

// GenerateDraft opens the fresh-generation stream for a session in the
// drafting phase. On completion it commits the draft version, records it on
// the session, and advances the phase to review automatically. Returns a
// nil channel while a generation is already pending.
func (s *draftService) GenerateDraft(ctx context.Context, session *models.EvolutionSession, handlers stream.Handlers) (*stream.Channel, error) {
	if session == nil {
		return nil, ValidationError("session is required")
	}
	if session.Phase != models.PhaseDrafting {
		return nil, &models.StateTransitionError{From: session.Phase, To: models.PhaseDrafting}
	}
	if !session.DraftReady() {
		return nil, ErrNotReady
	}
	if session.SummaryText == nil || strings.TrimSpace(*session.SummaryText) == "" {
		return nil, ValidationError("session has no approved summary")
	}

	slot := s.slot(session.ID, "draft")
	if slot.Busy() {
		return nil, nil
	}

	story, err := s.stories.GetByID(ctx, session.StoryID)
	if err != nil {
		return nil, err
	}
	msgs := client.DraftMessages(story.Content, *session.SummaryText, *session.WritingStyle, *session.LengthPreference)

	finalize := func(persistCtx context.Context, version *models.DraftVersion) error {
		_, err := s.sessions.UpdateByID(persistCtx, session.ID, map[string]interface{}{
			"draft_version_id":     version.ID,
			"draft_version_number": version.VersionNumber,
			"phase":                models.PhaseReview,
		})
		if err == nil {
			events.Emit(events.WithSession(persistCtx, session.ID), events.EvolutionEventPhase,
				events.NewPhase(string(models.PhaseReview)))
		}
		return err
	}

	return slot.Open(ctx, s.producer(session, msgs, finalize), handlers), nil
}

// Revise opens a revision stream seeded with the latest reviewed draft and
// the author's instruction. The phase stays review; a completed revision
// only replaces the working draft reference. Returns a nil channel while a
// revision is already pending.
func (s *draftService) Revise(ctx context.Context, session *models.EvolutionSession, instruction string, handlers stream.Handlers) (*stream.Channel, error) {
	if session == nil {
		return nil, ValidationError("session is required")
	}
	if session.Phase != models.PhaseReview {
		return nil, &models.StateTransitionError{From: session.Phase, To: models.PhaseReview}
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ValidationError("revision instruction is required")
	}
	if session.DraftVersionID == nil {
		return nil, ErrDraftMissing
	}

	slot := s.slot(session.ID, "revise")
	if slot.Busy() {
		return nil, nil
	}

	current, err := s.drafts.GetByID(ctx, *session.DraftVersionID)
	if err != nil {
		return nil, err
	}
	msgs := client.RevisionMessages(current.Content, instruction)

	finalize := func(persistCtx context.Context, version *models.DraftVersion) error {
		_, err := s.sessions.UpdateByID(persistCtx, session.ID, map[string]interface{}{
			"draft_version_id":     version.ID,
			"draft_version_number": version.VersionNumber,
		})
		return err
	}

	return slot.Open(ctx, s.producer(session, msgs, finalize), handlers), nil
}

func (s *draftService) LatestVersion(ctx context.Context, sessionID string) (*models.DraftVersion, error) {
	return s.drafts.LatestBySession(ctx, sessionID)
}

func (s *draftService) Versions(ctx context.Context, sessionID string) ([]models.DraftVersion, error) {
	return s.drafts.ListBySession(ctx, sessionID)
}

// Teardown aborts the session's open generation and revision streams.
func (s *draftService) Teardown(sessionID string) {
	s.abort(sessionID+":draft", sessionID+":revise")
}

// Shutdown aborts every open stream; used when the process drains.
func (s *draftService) Shutdown() {
	s.slotMu.Lock()
	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	s.slotMu.Unlock()
	s.abort(keys...)
}

func (s *draftService) slot(sessionID, kind string) *stream.Slot {
	key := sessionID + ":" + kind
	s.slotMu.Lock()
	defer s.slotMu.Unlock()
	if s.slots[key] == nil {
		s.slots[key] = stream.NewSlot()
	}
	return s.slots[key]
}

func (s *draftService) abort(keys ...string) {
	for _, key := range keys {
		s.slotMu.Lock()
		slot := s.slots[key]
		s.slotMu.Unlock()
		if slot != nil {
			slot.Abort()
		}
	}
}

// producer bridges the model token stream into channel events. The draft
// version is committed only when the stream ran to completion and the
// channel has not been cancelled; aborted streams leave no trace.
func (s *draftService) producer(session *models.EvolutionSession, msgs []*schema.Message, finalize func(ctx context.Context, version *models.DraftVersion) error) stream.Producer {
	return func(ctx context.Context, emit func(stream.Event) bool) {
		eventCtx := events.WithSession(ctx, session.ID)

		full, err := s.llm.StreamText(ctx, msgs, func(text string) error {
			if !emit(stream.Event{Type: stream.EventChunk, Text: text}) {
				return context.Canceled
			}
			events.Emit(eventCtx, events.EvolutionEventStream, events.NewChunk(text))
			return nil
		})
		if err != nil {
			emit(stream.Event{Type: stream.EventError, Message: err.Error(), Retryable: retryableError(err)})
			return
		}
		if ctx.Err() != nil {
			// Cancelled between the last token and the commit: discard.
			return
		}

		persistCtx := context.WithoutCancel(ctx)
		version, err := s.drafts.Create(persistCtx, session.StoryID, session.ID, full)
		if err != nil {
			emit(stream.Event{Type: stream.EventError, Message: fmt.Sprintf("commit draft: %v", err), Retryable: true})
			return
		}
		if err := finalize(persistCtx, version); err != nil {
			emit(stream.Event{Type: stream.EventError, Message: fmt.Sprintf("record draft: %v", err), Retryable: true})
			return
		}

		events.Emit(eventCtx, events.EvolutionEventStream, events.NewDone(map[string]string{
			"versionId": version.ID,
		}))
		emit(stream.Event{
			Type:          stream.EventDone,
			VersionID:     version.ID,
			VersionNumber: version.VersionNumber,
		})
	}
}
