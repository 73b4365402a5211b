package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"

	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/tests/mocks"
)

// fixture wires the full service stack onto in-memory repositories so the
// engine can be driven end to end without a database or a live model.
type fixture struct {
	mu       sync.Mutex
	session  *models.EvolutionSession
	messages []*models.ChatMessage
	versions []*models.DraftVersion
	story    *models.Story

	svcs *services.DbServices
}

func newFixture(llm services.TextStreamer) *fixture {
	f := &fixture{
		story: &models.Story{ID: "story-1", LegacyID: "legacy-1", Title: "Margaret", Content: "A short original story."},
	}

	sessions := &mocks.EvolutionSessionRepositoryMock{
		CreateFunc: func(_ context.Context, session *models.EvolutionSession) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			copied := *session
			f.session = &copied
			return nil
		},
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.session == nil || f.session.ID != id {
				return nil, repositories.ErrNotFound
			}
			copied := *f.session
			return &copied, nil
		},
		GetActiveByStoryFunc: func(_ context.Context, storyID string) (*models.EvolutionSession, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.session == nil || f.session.StoryID != storyID || f.session.Phase.Terminal() {
				return nil, nil
			}
			copied := *f.session
			return &copied, nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.session == nil || f.session.ID != id {
				return nil, repositories.ErrNotFound
			}
			if v, ok := updates["phase"]; ok {
				f.session.Phase = v.(models.Phase)
			}
			if v, ok := updates["writing_style"]; ok {
				style := v.(models.WritingStyle)
				f.session.WritingStyle = &style
			}
			if v, ok := updates["length_preference"]; ok {
				length := v.(models.LengthPreference)
				f.session.LengthPreference = &length
			}
			if v, ok := updates["summary_text"]; ok {
				text := v.(string)
				f.session.SummaryText = &text
			}
			if v, ok := updates["draft_version_id"]; ok {
				id := v.(string)
				f.session.DraftVersionID = &id
			}
			if v, ok := updates["draft_version_number"]; ok {
				n := v.(int)
				f.session.DraftVersionNumber = &n
			}
			copied := *f.session
			return &copied, nil
		},
	}

	messages := &mocks.ChatMessageRepositoryMock{
		CreateFunc: func(_ context.Context, msg *models.ChatMessage) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			copied := *msg
			f.messages = append(f.messages, &copied)
			return nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, row := range f.messages {
				if row.ID != id {
					continue
				}
				if v, ok := updates["status"]; ok {
					row.Status = v.(models.MessageStatus)
				}
				if v, ok := updates["content"]; ok {
					row.Content = v.(string)
				}
			}
			return nil
		},
		ListByConversationFunc: func(_ context.Context, _ string) ([]models.ChatMessage, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			out := make([]models.ChatMessage, 0, len(f.messages))
			for _, row := range f.messages {
				out = append(out, *row)
			}
			return out, nil
		},
		HasStreamingFunc: func(_ context.Context, _ string) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, row := range f.messages {
				if row.Status == models.MessageStreaming {
					return true, nil
				}
			}
			return false, nil
		},
		HasCompleteFunc: func(_ context.Context, _ string) (bool, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, row := range f.messages {
				if row.Role == models.RoleAssistant && row.Status == models.MessageComplete {
					return true, nil
				}
			}
			return false, nil
		},
	}

	drafts := &mocks.DraftVersionRepositoryMock{
		CreateFunc: func(_ context.Context, storyID, sessionID, content string) (*models.DraftVersion, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			version := &models.DraftVersion{
				ID:            fmt.Sprintf("draft-%d", len(f.versions)+1),
				StoryID:       storyID,
				SessionID:     sessionID,
				Content:       content,
				VersionNumber: len(f.versions) + 1,
			}
			f.versions = append(f.versions, version)
			copied := *version
			return &copied, nil
		},
		GetByIDFunc: func(_ context.Context, id string) (*models.DraftVersion, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			for _, version := range f.versions {
				if version.ID == id {
					copied := *version
					return &copied, nil
				}
			}
			return nil, repositories.ErrNotFound
		},
		LatestBySessionFunc: func(_ context.Context, _ string) (*models.DraftVersion, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if len(f.versions) == 0 {
				return nil, nil
			}
			copied := *f.versions[len(f.versions)-1]
			return &copied, nil
		},
	}

	stories := &mocks.StoryRepositoryMock{
		GetByIDFunc: func(_ context.Context, id string) (*models.Story, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			copied := *f.story
			return &copied, nil
		},
		UpdateContentFunc: func(_ context.Context, _, content string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.story.Content = content
			return nil
		},
	}

	evolution := services.NewEvolutionService(sessions, drafts, stories)
	summaries := services.NewSummaryService(evolution, messages, stories, llm)
	conversations := services.NewConversationService(messages, stories, llm, summaries.InFlight)
	draftSvc := services.NewDraftService(sessions, drafts, stories, llm)

	ctx := context.Background()
	evolution.Startup(ctx)
	summaries.Startup(ctx)
	conversations.Startup(ctx)
	draftSvc.Startup(ctx)

	f.svcs = &services.DbServices{
		Evolution:     evolution,
		Conversations: conversations,
		Summaries:     summaries,
		Drafts:        draftSvc,
		Stories:       stories,
	}
	return f
}

func (f *fixture) storyContent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.story.Content
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, what)
}

func TestWorkflow_FullPipeline(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"She loved ", "the lake house ", "most of all."}}
	f := newFixture(llm)
	w := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer w.Teardown()

	assert.NoError(t, w.Start("biographer"))
	assert.Equal(t, models.PhaseElicitation, w.Session().Phase)
	assert.False(t, w.ReadyToSummarize(), "no completed reply yet")

	// One chat turn completes; the summary affordance unlocks.
	assert.NoError(t, w.SendMessage("Margaret summered at the lake house."))
	waitFor(t, w.ReadyToSummarize, "ready after the first completed reply")

	assert.NoError(t, w.ContinueToSummary())
	assert.Equal(t, models.PhaseSummary, w.Session().Phase)

	text, err := w.GenerateSummary()
	assert.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.NotNil(t, w.Session().SummaryText)

	assert.NoError(t, w.ApproveSummary())
	assert.Equal(t, models.PhaseStyleSelection, w.Session().Phase)

	assert.False(t, w.CanSubmitPreferences())
	assert.NoError(t, w.SelectStyle(models.StyleVivid))
	assert.NoError(t, w.SelectLength(models.LengthSimilar))
	assert.True(t, w.CanSubmitPreferences())

	// Submitting enters drafting and opens the generation stream; the
	// completed stream advances the session to review on its own.
	assert.NoError(t, w.SubmitPreferences())
	waitFor(t, func() bool { return w.Session().Phase == models.PhaseReview }, "generation auto-advances to review")
	assert.Equal(t, "She loved the lake house most of all.", w.DraftText())

	content, err := w.Accept()
	assert.NoError(t, err)
	assert.Equal(t, "She loved the lake house most of all.", content)
	assert.Equal(t, models.PhaseCompleted, w.Session().Phase)
	assert.Equal(t, content, f.storyContent())
}

func TestWorkflow_RevisionLoop(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Draft about the lake house."}}
	f := newFixture(llm)
	w := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer w.Teardown()

	advanceToReview(t, w)
	assert.Equal(t, 1, *w.Session().DraftVersionNumber)

	// Two revision rounds; each commits a new version and stays in review.
	llm.Chunks = []string{"More about ", "the lake house."}
	assert.NoError(t, w.RequestChanges("expand the lake house part"))
	waitFor(t, func() bool { return !w.Streaming() }, "first revision settles")
	assert.Equal(t, models.PhaseReview, w.Session().Phase)
	assert.Equal(t, 2, *w.Session().DraftVersionNumber)
	assert.Equal(t, "More about the lake house.", w.DraftText())

	llm.Chunks = []string{"Final lake house telling."}
	assert.NoError(t, w.RequestChanges("tighten it"))
	waitFor(t, func() bool { return !w.Streaming() }, "second revision settles")
	assert.Equal(t, 3, *w.Session().DraftVersionNumber)

	content, err := w.Accept()
	assert.NoError(t, err)
	assert.Equal(t, "Final lake house telling.", content)
	assert.Equal(t, content, f.storyContent())
}

func TestWorkflow_AcceptBlockedWhileRevising(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Initial draft."}}
	f := newFixture(llm)
	w := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer w.Teardown()

	advanceToReview(t, w)

	started := make(chan struct{})
	release := make(chan struct{})
	llm.StreamFunc = func(ctx context.Context, _ []*schema.Message, onChunk func(string) error) (string, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return "revised", nil
	}

	assert.NoError(t, w.RequestChanges("revise it"))
	<-started

	_, err := w.Accept()
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, w.Discard(), ErrBusy)

	close(release)
	waitFor(t, func() bool { return !w.Streaming() }, "revision settles")
	_, err = w.Accept()
	assert.NoError(t, err)
}

func TestWorkflow_DiscardLeavesStoryUntouched(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Ephemeral draft."}}
	f := newFixture(llm)
	w := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer w.Teardown()

	advanceToReview(t, w)
	original := f.storyContent()

	assert.NoError(t, w.Discard())
	assert.Equal(t, models.PhaseDiscarded, w.Session().Phase)
	assert.Equal(t, original, f.storyContent())
}

func TestWorkflow_Indicator(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Draft."}}
	f := newFixture(llm)
	w := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer w.Teardown()

	assert.NoError(t, w.Start(""))
	for _, entry := range w.Indicator() {
		assert.False(t, entry.Navigable, "nothing navigable from elicitation")
	}

	advanceToReview(t, w)
	navigable := map[models.Phase]bool{}
	for _, entry := range w.Indicator() {
		navigable[entry.Phase] = entry.Navigable
	}
	assert.True(t, navigable[models.PhaseSummary])
	assert.True(t, navigable[models.PhaseStyleSelection])
	assert.False(t, navigable[models.PhaseElicitation], "elicitation is reached through the summary step, not the header")
	assert.False(t, navigable[models.PhaseDrafting], "drafting is never a navigation target")

	// Jump back to summary; the indicator edge matches the state machine.
	assert.NoError(t, w.NavigateBack(models.PhaseSummary))
	assert.Equal(t, models.PhaseSummary, w.Session().Phase)

	assert.Error(t, w.NavigateBack(models.PhaseDrafting))
}

func TestWorkflow_ResumeActiveSession(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Resumable draft."}}
	f := newFixture(llm)
	first := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	advanceToReview(t, first)
	sessionID := first.Session().ID
	first.Teardown()

	second := New(context.Background(), f.svcs, "story-1", "legacy-1", Callbacks{})
	defer second.Teardown()
	assert.NoError(t, second.Start("ignored-persona"))
	assert.Equal(t, sessionID, second.Session().ID, "start resumes the active session")
	assert.Equal(t, models.PhaseReview, second.Session().Phase)
	assert.Equal(t, "Resumable draft.", second.DraftText(), "resume reloads the latest committed draft")
}

// advanceToReview drives a fresh workflow through the happy path up to the
// review phase.
func advanceToReview(t *testing.T, w *Workflow) {
	t.Helper()
	assert.NoError(t, w.Start("biographer"))
	assert.NoError(t, w.SendMessage("A memory about the lake house."))
	waitFor(t, w.ReadyToSummarize, "chat turn completes")
	assert.NoError(t, w.ContinueToSummary())
	_, err := w.GenerateSummary()
	assert.NoError(t, err)
	assert.NoError(t, w.ApproveSummary())
	assert.NoError(t, w.SelectStyle(models.StyleVivid))
	assert.NoError(t, w.SelectLength(models.LengthSimilar))
	assert.NoError(t, w.SubmitPreferences())
	waitFor(t, func() bool { return w.Session().Phase == models.PhaseReview && !w.Streaming() }, "generation completes")
}
