package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wayfarerhq/wayfarer/server/domain/entities"
	"github.com/wayfarerhq/wayfarer/server/domain/repositories"
)

// GenerationApology is shown as an assistant turn when reply generation
// fails. The turn is local-only: not persisted and not spoken.
const GenerationApology = "Sorry, I couldn't come up with a reply just now. Please try again."

const replyTimeout = 60 * time.Second

// TranscriptListener observes transcript snapshots after every mutation.
// It is invoked while the manager's lock is held and must not call back
// into the manager.
type TranscriptListener func(turns []entities.Turn)

// SessionManager owns the chat transcript and the turn-submission protocol
// for one identity. At most one reply may be outstanding at a time; extra
// submissions are dropped silently. Collaborators are injected so views and
// tests can substitute fakes.
type SessionManager struct {
	mu      sync.Mutex
	session *entities.ChatSession

	store     repositories.TranscriptStore // nil for ephemeral sessions
	generator repositories.ReplyGenerator
	voice     *VoiceAdapter // nil when playback is not wired
	logger    *zap.Logger

	pendingReply bool
	pendingInput string

	listener    TranscriptListener
	unsubscribe func()
}

// NewSessionManager creates the manager for one identity. Pass a nil store
// for local-only sessions and a nil voice adapter to disable playback.
func NewSessionManager(
	identity entities.Identity,
	generator repositories.ReplyGenerator,
	store repositories.TranscriptStore,
	voice *VoiceAdapter,
	logger *zap.Logger,
) *SessionManager {
	return &SessionManager{
		session:   entities.NewChatSession(identity),
		store:     store,
		generator: generator,
		voice:     voice,
		logger:    logger,
	}
}

// SetTranscriptListener registers the observer notified after each change.
func (m *SessionManager) SetTranscriptListener(fn TranscriptListener) {
	m.mu.Lock()
	m.listener = fn
	m.mu.Unlock()
}

// Subscribe attaches the persisted transcript stream for this identity.
// Anonymous identities stay local-only. Each emission replaces the
// in-memory transcript wholesale.
func (m *SessionManager) Subscribe(ctx context.Context) error {
	m.mu.Lock()
	identity := m.session.Identity
	store := m.store
	m.mu.Unlock()

	if store == nil || identity.IsAnonymous() {
		return nil
	}

	unsubscribe, err := store.SubscribeOrderedTurns(ctx, identity.ID, func(turns []entities.Turn) {
		m.mu.Lock()
		m.session.Replace(turns)
		m.notifyLocked()
		m.mu.Unlock()
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return nil
}

// Teardown releases the store subscription so no callbacks leak into a
// stale session. The transcript itself is left as is.
func (m *SessionManager) Teardown() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Open makes the widget visible. An empty transcript gets the synthetic
// greeting; reopening never re-adds it.
func (m *SessionManager) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Open()
	m.notifyLocked()
}

// Close hides the widget. An in-flight reply keeps running and lands in the
// transcript so reopening shows it.
func (m *SessionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Close()
}

// IsOpen reports widget visibility.
func (m *SessionManager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.IsOpen
}

// PendingReply reports whether a reply is outstanding.
func (m *SessionManager) PendingReply() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingReply
}

// PendingInput returns the draft text slot shared with voice capture.
func (m *SessionManager) PendingInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingInput
}

// SetPendingInput replaces the draft text. The voice adapter writes here;
// it never touches the transcript directly.
func (m *SessionManager) SetPendingInput(text string) {
	m.mu.Lock()
	m.pendingInput = text
	m.mu.Unlock()
}

// Turns returns a copy of the current transcript.
func (m *SessionManager) Turns() []entities.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Turns()
}

// Submit runs one turn through the submission protocol: optimistic local
// append, best-effort persist, reply generation against the history window,
// then the assistant turn with playback. Empty input and submissions while
// a reply is outstanding are dropped silently.
func (m *SessionManager) Submit(ctx context.Context, rawText string, origin entities.Origin) {
	text := entities.NormalizeInput(rawText)
	if text == "" {
		return
	}

	m.mu.Lock()
	if m.pendingReply {
		m.mu.Unlock()
		m.logger.Debug("submission dropped, reply outstanding")
		return
	}
	m.pendingReply = true

	// The history window is built before the optimistic append so the live
	// prompt is excluded; it travels separately per the generator contract.
	history := m.historyWindowLocked()
	turn := entities.NewTurn(entities.SpeakerSelf, text, origin)
	m.session.Append(turn)
	m.pendingInput = ""
	identity := m.session.Identity
	m.notifyLocked()
	m.mu.Unlock()

	go m.awaitReply(identity, turn, history, text)
}

// awaitReply persists the submitted turn and resolves the reply. The
// pendingReply flag is cleared on every path, success or failure, so the
// widget can never get stuck awaiting.
func (m *SessionManager) awaitReply(
	identity entities.Identity,
	selfTurn entities.Turn,
	history []repositories.ReplyMessage,
	prompt string,
) {
	defer m.clearPendingReply()

	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	m.persist(ctx, identity, selfTurn)

	replyText, err := m.generator.GenerateReply(ctx, history, prompt)
	if err != nil {
		m.logger.Warn("reply generation failed",
			zap.String("identity", identity.ID),
			zap.Error(err))
		m.mu.Lock()
		m.session.Append(entities.NewTurn(entities.SpeakerOther, GenerationApology, entities.OriginError))
		m.pendingReply = false
		m.notifyLocked()
		m.mu.Unlock()
		return
	}

	reply := entities.NewTurn(entities.SpeakerOther, replyText, entities.OriginGenerated)

	m.mu.Lock()
	m.session.Append(reply)
	m.pendingReply = false
	m.notifyLocked()
	voice := m.voice
	m.mu.Unlock()

	m.persist(ctx, identity, reply)

	if voice != nil {
		voice.Speak(context.Background(), replyText)
	}
}

func (m *SessionManager) clearPendingReply() {
	m.mu.Lock()
	m.pendingReply = false
	m.mu.Unlock()
}

// historyWindowLocked maps the transcript into generator context. The
// synthetic greeting never reaches the model. Turn text is already in
// canonical plain-newline form.
func (m *SessionManager) historyWindowLocked() []repositories.ReplyMessage {
	turns := m.session.Turns()
	if m.session.HasGreeting() && len(turns) > 0 {
		turns = turns[1:]
	}

	history := make([]repositories.ReplyMessage, 0, len(turns))
	for _, turn := range turns {
		role := repositories.RoleUser
		if turn.Speaker == entities.SpeakerOther {
			role = repositories.RoleModel
		}
		history = append(history, repositories.ReplyMessage{Role: role, Text: turn.Text})
	}
	return history
}

// persist is best effort. The local transcript already reflects the turn;
// a failed write is logged and the flow continues.
func (m *SessionManager) persist(ctx context.Context, identity entities.Identity, turn entities.Turn) {
	if m.store == nil || identity.IsAnonymous() {
		return
	}
	if err := m.store.AppendTurn(ctx, identity.ID, turn); err != nil {
		m.logger.Error("failed to persist turn",
			zap.String("identity", identity.ID),
			zap.Error(err))
	}
}

func (m *SessionManager) notifyLocked() {
	if m.listener != nil {
		m.listener(m.session.Turns())
	}
}
