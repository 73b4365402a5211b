package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/tests/mocks"
)

// testBackend is an in-memory service stack behind the HTTP surface.
type testBackend struct {
	mu       sync.Mutex
	session  *models.EvolutionSession
	messages []*models.ChatMessage
}

func newTestServer(t *testing.T, llm services.TextStreamer) (*Server, *testBackend) {
	t.Helper()
	b := &testBackend{}

	sessions := &mocks.EvolutionSessionRepositoryMock{
		CreateFunc: func(_ context.Context, session *models.EvolutionSession) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			copied := *session
			b.session = &copied
			return nil
		},
		GetByIDFunc: func(_ context.Context, id string) (*models.EvolutionSession, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.session == nil || b.session.ID != id {
				return nil, repositories.ErrNotFound
			}
			copied := *b.session
			return &copied, nil
		},
		GetActiveByStoryFunc: func(_ context.Context, storyID string) (*models.EvolutionSession, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if b.session == nil || b.session.StoryID != storyID || b.session.Phase.Terminal() {
				return nil, nil
			}
			copied := *b.session
			return &copied, nil
		},
		UpdateByIDFunc: func(_ context.Context, id string, updates map[string]interface{}) (*models.EvolutionSession, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if v, ok := updates["phase"]; ok {
				b.session.Phase = v.(models.Phase)
			}
			if v, ok := updates["writing_style"]; ok {
				style := v.(models.WritingStyle)
				b.session.WritingStyle = &style
			}
			if v, ok := updates["length_preference"]; ok {
				length := v.(models.LengthPreference)
				b.session.LengthPreference = &length
			}
			if v, ok := updates["summary_text"]; ok {
				text := v.(string)
				b.session.SummaryText = &text
			}
			copied := *b.session
			return &copied, nil
		},
	}
	messages := &mocks.ChatMessageRepositoryMock{
		CreateFunc: func(_ context.Context, msg *models.ChatMessage) error {
			b.mu.Lock()
			defer b.mu.Unlock()
			copied := *msg
			b.messages = append(b.messages, &copied)
			return nil
		},
		ListByConversationFunc: func(_ context.Context, _ string) ([]models.ChatMessage, error) {
			b.mu.Lock()
			defer b.mu.Unlock()
			out := make([]models.ChatMessage, 0, len(b.messages))
			for _, row := range b.messages {
				out = append(out, *row)
			}
			return out, nil
		},
	}
	drafts := &mocks.DraftVersionRepositoryMock{}
	stories := &mocks.StoryRepositoryMock{}

	evolution := services.NewEvolutionService(sessions, drafts, stories)
	summaries := services.NewSummaryService(evolution, messages, stories, llm)
	conversations := services.NewConversationService(messages, stories, llm, summaries.InFlight)
	draftSvc := services.NewDraftService(sessions, drafts, stories, llm)

	ctx := context.Background()
	evolution.Startup(ctx)
	summaries.Startup(ctx)
	conversations.Startup(ctx)
	draftSvc.Startup(ctx)

	svcs := &services.DbServices{
		Evolution:     evolution,
		Conversations: conversations,
		Summaries:     summaries,
		Drafts:        draftSvc,
		Stories:       stories,
	}
	return NewServer(Config{Addr: "127.0.0.1:0"}, svcs, nil, zap.NewNop()), b
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestServer_StartSession(t *testing.T) {
	srv, _ := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts, "/stories/story-1/evolution", `{"legacyId":"legacy-1","personaId":"biographer"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var session models.EvolutionSession
	decode(t, resp, &session)
	assert.Equal(t, models.PhaseElicitation, session.Phase)
	assert.NotEmpty(t, session.ID)

	// Second start conflicts and hands back the active session.
	resp = postJSON(t, ts, "/stories/story-1/evolution", `{}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var existing models.EvolutionSession
	decode(t, resp, &existing)
	assert.Equal(t, session.ID, existing.ID)

	// And the active endpoint finds it.
	getResp, err := http.Get(ts.URL + "/stories/story-1/evolution/active")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	getResp.Body.Close()
}

func TestServer_ActiveSessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stories/story-9/evolution/active")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AdvancePhase_InvalidTransitionIs422(t *testing.T) {
	srv, b := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts, "/stories/story-1/evolution", `{}`)
	var session models.EvolutionSession
	decode(t, resp, &session)

	req, err := http.NewRequest(http.MethodPatch, ts.URL+"/sessions/"+session.ID+"/phase",
		strings.NewReader(`{"phase":"review"}`))
	require.NoError(t, err)
	patchResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer patchResp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, patchResp.StatusCode)

	b.mu.Lock()
	phase := b.session.Phase
	b.mu.Unlock()
	assert.Equal(t, models.PhaseElicitation, phase, "rejected request leaves the session untouched")
}

func TestServer_SendMessage_StreamsSSE(t *testing.T) {
	llm := &mocks.TextStreamerMock{Chunks: []string{"Tell me ", "more."}}
	srv, _ := newTestServer(t, llm)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts, "/stories/story-1/evolution", `{}`)
	var session models.EvolutionSession
	decode(t, resp, &session)

	msgResp := postJSON(t, ts, "/sessions/"+session.ID+"/messages", `{"text":"She loved the lake."}`)
	defer msgResp.Body.Close()
	assert.Equal(t, http.StatusOK, msgResp.StatusCode)
	assert.Equal(t, "text/event-stream", msgResp.Header.Get("Content-Type"))

	var types []string
	var texts []string
	scanner := bufio.NewScanner(msgResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var payload ssePayload
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload))
		types = append(types, payload.Type)
		if payload.Type == "chunk" {
			texts = append(texts, payload.Text)
		}
	}
	assert.Equal(t, []string{"chunk", "chunk", "done"}, types)
	assert.Equal(t, []string{"Tell me ", "more."}, texts)
}

func TestServer_SendMessage_EmptyTextIs400(t *testing.T) {
	srv, _ := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts, "/stories/story-1/evolution", `{}`)
	var session models.EvolutionSession
	decode(t, resp, &session)

	msgResp := postJSON(t, ts, "/sessions/"+session.ID+"/messages", `{"text":"   "}`)
	defer msgResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, msgResp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(msgResp.Body).Decode(&body))
	assert.Equal(t, "message text is required", body["error"])
}

func TestServer_RetryWithoutFailedTurnIs409(t *testing.T) {
	srv, _ := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp := postJSON(t, ts, "/stories/story-1/evolution", `{}`)
	var session models.EvolutionSession
	decode(t, resp, &session)

	retryResp := postJSON(t, ts, "/sessions/"+session.ID+"/messages/retry", `{}`)
	defer retryResp.Body.Close()
	assert.Equal(t, http.StatusConflict, retryResp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(retryResp.Body).Decode(&body))
	assert.Equal(t, "no failed assistant message to retry", body["error"])
}

func TestServer_SessionNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &mocks.TextStreamerMock{})
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/sessions/nope/messages")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
