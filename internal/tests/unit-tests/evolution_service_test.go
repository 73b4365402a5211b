package unit_tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/tests/mocks"
)

func styleOf(s models.WritingStyle) *models.WritingStyle          { return &s }
func lengthOf(l models.LengthPreference) *models.LengthPreference { return &l }

func newEvolutionService(sessions *mocks.EvolutionSessionRepositoryMock, drafts *mocks.DraftVersionRepositoryMock, stories *mocks.StoryRepositoryMock) services.EvolutionService {
	if sessions == nil {
		sessions = &mocks.EvolutionSessionRepositoryMock{}
	}
	if drafts == nil {
		drafts = &mocks.DraftVersionRepositoryMock{}
	}
	if stories == nil {
		stories = &mocks.StoryRepositoryMock{}
	}
	svc := services.NewEvolutionService(sessions, drafts, stories)
	svc.Startup(context.Background())
	return svc
}

func TestEvolutionService_Start_Validation(t *testing.T) {
	svc := newEvolutionService(nil, nil, nil)

	_, err := svc.Start(context.Background(), "  ", "legacy-1", "")
	assert.EqualError(t, err, "story ID is required")
}

func TestEvolutionService_Start_CreatesElicitationSession(t *testing.T) {
	var created *models.EvolutionSession
	sessions := &mocks.EvolutionSessionRepositoryMock{
		CreateFunc: func(_ context.Context, session *models.EvolutionSession) error {
			created = session
			return nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	session, err := svc.Start(context.Background(), "story-1", "legacy-1", "biographer")
	assert.NoError(t, err)
	assert.NotNil(t, created)
	assert.Equal(t, models.PhaseElicitation, session.Phase)
	assert.Equal(t, "story-1", session.StoryID)
	assert.Equal(t, "biographer", session.PersonaID)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, session.ConversationID)
	assert.NotEqual(t, session.ID, session.ConversationID)
}

func TestEvolutionService_Start_ReturnsExistingOnConflict(t *testing.T) {
	existing := &models.EvolutionSession{ID: "sess-1", StoryID: "story-1", Phase: models.PhaseSummary}
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetActiveByStoryFunc: func(_ context.Context, storyID string) (*models.EvolutionSession, error) {
			return existing, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	session, err := svc.Start(context.Background(), "story-1", "legacy-1", "")
	assert.ErrorIs(t, err, repositories.ErrActiveSessionConflict)
	assert.Equal(t, existing, session)
}

func TestEvolutionService_AdvancePhase_RejectsIllegalTransition(t *testing.T) {
	updated := false
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseElicitation}, nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, _ map[string]interface{}) (*models.EvolutionSession, error) {
			updated = true
			return nil, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, err := svc.AdvancePhase(context.Background(), "sess-1", models.PhaseReview, nil)
	var transition *models.StateTransitionError
	assert.ErrorAs(t, err, &transition)
	assert.Equal(t, models.PhaseElicitation, transition.From)
	assert.Equal(t, models.PhaseReview, transition.To)
	assert.False(t, updated, "illegal transition must not touch the session")
}

func TestEvolutionService_AdvancePhase_DraftingRequiresPreferences(t *testing.T) {
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseStyleSelection}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, err := svc.AdvancePhase(context.Background(), "sess-1", models.PhaseDrafting, nil)
	assert.ErrorIs(t, err, services.ErrNotReady)

	_, err = svc.AdvancePhase(context.Background(), "sess-1", models.PhaseDrafting,
		&services.AdvanceParams{WritingStyle: styleOf(models.StyleVivid)})
	assert.ErrorIs(t, err, services.ErrNotReady)
}

func TestEvolutionService_AdvancePhase_PersistsPreferencesWithPhase(t *testing.T) {
	var gotUpdates map[string]interface{}
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseStyleSelection}, nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
			gotUpdates = updates
			return &models.EvolutionSession{ID: id, Phase: models.PhaseDrafting}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	session, err := svc.AdvancePhase(context.Background(), "sess-1", models.PhaseDrafting,
		&services.AdvanceParams{
			WritingStyle:     styleOf(models.StyleEmotional),
			LengthPreference: lengthOf(models.LengthLonger),
		})
	assert.NoError(t, err)
	assert.Equal(t, models.PhaseDrafting, session.Phase)
	assert.Equal(t, models.PhaseDrafting, gotUpdates["phase"])
	assert.Equal(t, models.StyleEmotional, gotUpdates["writing_style"])
	assert.Equal(t, models.LengthLonger, gotUpdates["length_preference"])
}

func TestEvolutionService_AdvancePhase_TerminalSession(t *testing.T) {
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseCompleted}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, err := svc.AdvancePhase(context.Background(), "sess-1", models.PhaseSummary, nil)
	assert.ErrorIs(t, err, services.ErrSessionTerminal)
}

func TestEvolutionService_Accept_RequiresReviewPhase(t *testing.T) {
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseSummary}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, _, err := svc.Accept(context.Background(), "sess-1")
	var transition *models.StateTransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestEvolutionService_Accept_RequiresDraft(t *testing.T) {
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseReview}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, _, err := svc.Accept(context.Background(), "sess-1")
	assert.ErrorIs(t, err, services.ErrDraftMissing)
}

func TestEvolutionService_Accept_PromotesDraftAndCompletes(t *testing.T) {
	draftID := "draft-3"
	var storyContent string
	var gotUpdates map[string]interface{}

	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{
				ID: id, StoryID: "story-1", Phase: models.PhaseReview, DraftVersionID: &draftID,
			}, nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
			gotUpdates = updates
			return &models.EvolutionSession{ID: id, Phase: models.PhaseCompleted}, nil
		},
	}
	drafts := &mocks.DraftVersionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.DraftVersion, error) {
			return &models.DraftVersion{ID: id, Content: "the evolved story", VersionNumber: 3}, nil
		},
	}
	stories := &mocks.StoryRepositoryMock{
		UpdateContentFunc: func(_ context.Context, id, content string) error {
			storyContent = content
			return nil
		},
	}
	svc := newEvolutionService(sessions, drafts, stories)

	session, content, err := svc.Accept(context.Background(), "sess-1")
	assert.NoError(t, err)
	assert.Equal(t, "the evolved story", content)
	assert.Equal(t, "the evolved story", storyContent)
	assert.Equal(t, models.PhaseCompleted, session.Phase)
	assert.Equal(t, models.PhaseCompleted, gotUpdates["phase"])
}

func TestEvolutionService_Accept_StoryWriteFailureLeavesReview(t *testing.T) {
	draftID := "draft-1"
	phaseUpdated := false
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{
				ID: id, StoryID: "story-1", Phase: models.PhaseReview, DraftVersionID: &draftID,
			}, nil
		},
		UpdateByIDFunc: func(_ context.Context, _ string, _ map[string]interface{}) (*models.EvolutionSession, error) {
			phaseUpdated = true
			return nil, nil
		},
	}
	drafts := &mocks.DraftVersionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.DraftVersion, error) {
			return &models.DraftVersion{ID: id, Content: "text"}, nil
		},
	}
	stories := &mocks.StoryRepositoryMock{
		UpdateContentFunc: func(_ context.Context, _, _ string) error {
			return assert.AnError
		},
	}
	svc := newEvolutionService(sessions, drafts, stories)

	_, _, err := svc.Accept(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.False(t, phaseUpdated, "session must stay in review when the story write fails")
}

func TestEvolutionService_Discard_FromAnyActivePhase(t *testing.T) {
	for _, phase := range []models.Phase{
		models.PhaseElicitation, models.PhaseSummary, models.PhaseStyleSelection,
		models.PhaseDrafting, models.PhaseReview,
	} {
		var gotUpdates map[string]interface{}
		sessions := &mocks.EvolutionSessionRepositoryMock{
			GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
				return &models.EvolutionSession{ID: id, Phase: phase}, nil
			},
			UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
				gotUpdates = updates
				return &models.EvolutionSession{ID: id, Phase: models.PhaseDiscarded}, nil
			},
		}
		svc := newEvolutionService(sessions, nil, nil)

		session, err := svc.Discard(context.Background(), "sess-1")
		assert.NoError(t, err, "discard from %s", phase)
		assert.Equal(t, models.PhaseDiscarded, session.Phase)
		assert.Equal(t, models.PhaseDiscarded, gotUpdates["phase"])
	}
}

func TestEvolutionService_Discard_TerminalSession(t *testing.T) {
	sessions := &mocks.EvolutionSessionRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			return &models.EvolutionSession{ID: id, Phase: models.PhaseDiscarded}, nil
		},
	}
	svc := newEvolutionService(sessions, nil, nil)

	_, err := svc.Discard(context.Background(), "sess-1")
	assert.ErrorIs(t, err, services.ErrSessionTerminal)
}
