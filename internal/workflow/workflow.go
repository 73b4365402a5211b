// Package workflow is the embeddable spine of the story evolution
// pipeline. A host hands it a story and callbacks; the workflow owns the
// authoritative session snapshot and current draft text, mounts one phase
// step at a time, and funnels every phase change through a single
// validated advance request.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"evermore/internal/models"
	"evermore/internal/repositories"
	"evermore/internal/services"
	"evermore/internal/stream"
	"evermore/internal/summary"
)

// ErrBusy is returned when an action competes with an outstanding request
// in the same phase. Hosts should disable the affordance instead of
// retrying.
var ErrBusy = errors.New("another request is still pending")

// Callbacks let the host react to workflow progress. All callbacks run on
// internal goroutines; hosts must not block in them.
type Callbacks struct {
	// OnPhaseChange fires after every successful phase transition.
	OnPhaseChange func(phase models.Phase)
	// OnDraftText fires with the full displayed draft text whenever it
	// changes, including per-chunk while a stream is live.
	OnDraftText func(text string)
	// OnBanner surfaces a dismissible error with an optional retry hint.
	OnBanner func(message string, retryable bool)
}

// Workflow drives one evolution session for one story.
type Workflow struct {
	evolution     services.EvolutionService
	conversations services.ConversationService
	summaries     services.SummaryService
	drafts        services.DraftService

	storyID  string
	legacyID string
	cb       Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	session     *models.EvolutionSession
	draftText   string // latest committed draft content
	liveText    string // accumulating stream text while generating/revising
	streaming   bool   // a generation or revision channel is open
	advancing   bool   // a phase-advance request is outstanding
	summarizing bool
	accepting   bool
	staged      services.AdvanceParams // style step selections before submit
}

func New(ctx context.Context, svcs *services.DbServices, storyID, legacyID string, cb Callbacks) *Workflow {
	ctx, cancel := context.WithCancel(ctx)
	return &Workflow{
		evolution:     svcs.Evolution,
		conversations: svcs.Conversations,
		summaries:     svcs.Summaries,
		drafts:        svcs.Drafts,
		storyID:       storyID,
		legacyID:      legacyID,
		cb:            cb,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start creates the session, or resumes the story's active one. Resuming a
// session parked in the transient drafting phase re-opens the generation
// stream immediately.
func (w *Workflow) Start(personaID string) error {
	session, err := w.evolution.Start(w.ctx, w.storyID, w.legacyID, personaID)
	if err != nil && !errors.Is(err, repositories.ErrActiveSessionConflict) {
		return err
	}

	w.mu.Lock()
	w.session = session
	w.mu.Unlock()

	if session.Phase == models.PhaseReview {
		if latest, lerr := w.drafts.LatestVersion(w.ctx, session.ID); lerr == nil && latest != nil {
			w.setDraftText(latest.Content)
		}
	}
	w.notifyPhase(session.Phase)

	if session.Phase == models.PhaseDrafting {
		return w.beginGeneration()
	}
	return nil
}

// Session returns a copy of the current session snapshot.
func (w *Workflow) Session() models.EvolutionSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return models.EvolutionSession{}
	}
	return *w.session
}

// DraftText returns the content currently displayed: the live accumulating
// text while a stream is open, otherwise the latest committed draft.
func (w *Workflow) DraftText() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.streaming {
		return w.liveText
	}
	return w.draftText
}

// Streaming reports whether a generation or revision stream is open.
// Accept and Discard are disabled while it is true.
func (w *Workflow) Streaming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.streaming
}

// Teardown releases every open stream and pending request. The session
// itself is left as-is so it can be resumed later.
func (w *Workflow) Teardown() {
	w.mu.Lock()
	session := w.session
	w.mu.Unlock()

	w.cancel()
	if session != nil {
		w.conversations.Teardown(session.ConversationID)
		w.drafts.Teardown(session.ID)
	}
}

// --- elicitation step ---

// SendMessage forwards a chat message; it is silently ignored while a
// reply is already streaming, mirroring the disabled send affordance.
func (w *Workflow) SendMessage(text string) error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}
	_, err := w.conversations.SendMessage(w.ctx, session, text, w.chatHandlers())
	return err
}

// RetryMessage re-sends the last failed assistant turn.
func (w *Workflow) RetryMessage() error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}
	_, err := w.conversations.RetryLast(w.ctx, session, w.chatHandlers())
	return err
}

// History returns the ordered conversation messages.
func (w *Workflow) History() ([]models.ChatMessage, error) {
	session := w.sessionOrNil()
	if session == nil {
		return nil, fmt.Errorf("workflow not started")
	}
	return w.conversations.History(w.ctx, session.ConversationID)
}

// ReadyToSummarize gates the advance-to-summary affordance.
func (w *Workflow) ReadyToSummarize() bool {
	session := w.sessionOrNil()
	if session == nil {
		return false
	}
	ready, err := w.conversations.ReadyToSummarize(w.ctx, session)
	return err == nil && ready
}

// ContinueToSummary advances elicitation -> summary on explicit user
// action.
func (w *Workflow) ContinueToSummary() error {
	return w.advance(models.PhaseSummary, nil)
}

func (w *Workflow) chatHandlers() stream.Handlers {
	return stream.Handlers{
		OnError: func(message string, retryable bool) {
			w.banner(message, retryable)
		},
	}
}

// --- summary step ---

// GenerateSummary runs the request/response summarization. While it is
// pending no phase-advancing action may be taken.
func (w *Workflow) GenerateSummary() (string, error) {
	session := w.sessionOrNil()
	if session == nil {
		return "", fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.summarizing || w.advancing {
		w.mu.Unlock()
		return "", ErrBusy
	}
	w.summarizing = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.summarizing = false
		w.mu.Unlock()
	}()

	text, err := w.summaries.Generate(w.ctx, session)
	if err != nil {
		w.banner(err.Error(), true)
		return "", err
	}
	w.refreshSession()
	return text, nil
}

// SummaryBlocks classifies the stored summary text for display.
func (w *Workflow) SummaryBlocks() []summary.Block {
	session := w.sessionOrNil()
	if session == nil || session.SummaryText == nil {
		return nil
	}
	return summary.Parse(*session.SummaryText)
}

// ApproveSummary advances summary -> style_selection.
func (w *Workflow) ApproveSummary() error {
	return w.advance(models.PhaseStyleSelection, nil)
}

// ContinueChatting returns to elicitation for more detail.
func (w *Workflow) ContinueChatting() error {
	return w.advance(models.PhaseElicitation, nil)
}

// --- style selection step ---

// SelectStyle stages the writing style choice.
func (w *Workflow) SelectStyle(style models.WritingStyle) error {
	if !style.Valid() {
		return fmt.Errorf("invalid writing style %q", style)
	}
	w.mu.Lock()
	w.staged.WritingStyle = &style
	w.mu.Unlock()
	return nil
}

// SelectLength stages the length preference choice.
func (w *Workflow) SelectLength(length models.LengthPreference) error {
	if !length.Valid() {
		return fmt.Errorf("invalid length preference %q", length)
	}
	w.mu.Lock()
	w.staged.LengthPreference = &length
	w.mu.Unlock()
	return nil
}

// CanSubmitPreferences reports whether both selections are staged.
func (w *Workflow) CanSubmitPreferences() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.staged.WritingStyle != nil && w.staged.LengthPreference != nil
}

// SubmitPreferences advances style_selection -> drafting with both
// parameters, then opens the generation stream automatically.
func (w *Workflow) SubmitPreferences() error {
	w.mu.Lock()
	params := w.staged
	w.mu.Unlock()
	if params.WritingStyle == nil || params.LengthPreference == nil {
		return services.ErrNotReady
	}

	if err := w.advance(models.PhaseDrafting, &params); err != nil {
		return err
	}
	return w.beginGeneration()
}

// --- drafting / review steps ---

// beginGeneration opens the fresh-draft stream. Entering drafting does
// this automatically; no user action is involved. The service advances the
// session to review when the stream completes.
func (w *Workflow) beginGeneration() error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.streaming {
		w.mu.Unlock()
		return ErrBusy
	}
	w.streaming = true
	w.liveText = ""
	w.mu.Unlock()

	ch, err := w.drafts.GenerateDraft(w.ctx, session, w.draftHandlers())
	if err != nil || ch == nil {
		w.mu.Lock()
		w.streaming = false
		w.mu.Unlock()
		if err != nil {
			w.banner(err.Error(), true)
		}
		return err
	}
	return nil
}

// RequestChanges opens a revision stream seeded with the current draft and
// the author's instruction. The displayed content switches to the live
// revision text; phase stays review, and the loop may repeat any number of
// times before Accept or Discard.
func (w *Workflow) RequestChanges(instruction string) error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.streaming || w.accepting {
		w.mu.Unlock()
		return ErrBusy
	}
	w.streaming = true
	w.liveText = ""
	w.mu.Unlock()

	ch, err := w.drafts.Revise(w.ctx, session, instruction, w.draftHandlers())
	if err != nil || ch == nil {
		w.mu.Lock()
		w.streaming = false
		w.mu.Unlock()
		if err != nil {
			w.banner(err.Error(), true)
		}
		return err
	}
	return nil
}

// Accept finalizes the session: the latest reviewed draft becomes the
// story's canonical content. Disabled while any stream is open.
func (w *Workflow) Accept() (string, error) {
	session := w.sessionOrNil()
	if session == nil {
		return "", fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.streaming || w.accepting || w.advancing {
		w.mu.Unlock()
		return "", ErrBusy
	}
	w.accepting = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.accepting = false
		w.mu.Unlock()
	}()

	updated, content, err := w.evolution.Accept(w.ctx, session.ID)
	if err != nil {
		w.banner(err.Error(), true)
		return "", err
	}
	w.setSession(updated)
	return content, nil
}

// Discard abandons the session from any non-terminal phase; the story's
// prior content is untouched. Disabled while any stream is open.
func (w *Workflow) Discard() error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.streaming || w.accepting || w.advancing {
		w.mu.Unlock()
		return ErrBusy
	}
	w.accepting = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.accepting = false
		w.mu.Unlock()
	}()

	updated, err := w.evolution.Discard(w.ctx, session.ID)
	if err != nil {
		w.banner(err.Error(), true)
		return err
	}
	w.conversations.Teardown(updated.ConversationID)
	w.drafts.Teardown(updated.ID)
	w.setSession(updated)
	return nil
}

func (w *Workflow) draftHandlers() stream.Handlers {
	return stream.Handlers{
		OnChunk: func(text string) {
			w.mu.Lock()
			w.liveText += text
			full := w.liveText
			w.mu.Unlock()
			if w.cb.OnDraftText != nil {
				w.cb.OnDraftText(full)
			}
		},
		OnDone: func(versionID string, versionNumber int) {
			w.mu.Lock()
			w.draftText = w.liveText
			w.streaming = false
			full := w.draftText
			w.mu.Unlock()
			w.refreshSession()
			if w.cb.OnDraftText != nil {
				w.cb.OnDraftText(full)
			}
		},
		OnError: func(message string, retryable bool) {
			// Partial accumulated text is discarded; the previous draft
			// (if any) is displayed again.
			w.mu.Lock()
			w.liveText = ""
			w.streaming = false
			prev := w.draftText
			w.mu.Unlock()
			if w.cb.OnDraftText != nil {
				w.cb.OnDraftText(prev)
			}
			w.banner(message, retryable)
		},
	}
}

// --- shared plumbing ---

// advance funnels every user-initiated phase change through one
// serialization point: a single outstanding request at a time.
func (w *Workflow) advance(target models.Phase, params *services.AdvanceParams) error {
	session := w.sessionOrNil()
	if session == nil {
		return fmt.Errorf("workflow not started")
	}

	w.mu.Lock()
	if w.advancing || w.summarizing || w.accepting {
		w.mu.Unlock()
		return ErrBusy
	}
	w.advancing = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.advancing = false
		w.mu.Unlock()
	}()

	updated, err := w.evolution.AdvancePhase(w.ctx, session.ID, target, params)
	if err != nil {
		var transition *models.StateTransitionError
		if errors.As(err, &transition) {
			// Integrity bug in the orchestrating UI: log via banner and
			// leave the session unchanged.
			w.banner(transition.Error(), false)
		} else {
			w.banner(err.Error(), true)
		}
		return err
	}
	w.setSession(updated)
	return nil
}

func (w *Workflow) sessionOrNil() *models.EvolutionSession {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

func (w *Workflow) setSession(session *models.EvolutionSession) {
	w.mu.Lock()
	w.session = session
	w.mu.Unlock()
	w.notifyPhase(session.Phase)
}

func (w *Workflow) setDraftText(text string) {
	w.mu.Lock()
	w.draftText = text
	w.mu.Unlock()
}

func (w *Workflow) refreshSession() {
	session := w.sessionOrNil()
	if session == nil {
		return
	}
	if updated, err := w.evolution.Get(w.ctx, session.ID); err == nil {
		w.setSession(updated)
	}
}

func (w *Workflow) notifyPhase(phase models.Phase) {
	if w.cb.OnPhaseChange != nil {
		w.cb.OnPhaseChange(phase)
	}
}

func (w *Workflow) banner(message string, retryable bool) {
	if w.cb.OnBanner != nil {
		w.cb.OnBanner(strings.TrimSpace(message), retryable)
	}
}
