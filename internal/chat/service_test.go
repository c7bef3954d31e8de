package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/escalation"
	"github.com/rtvpioli/assistant-engine/internal/humanizer"
	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type fakeSessionStore struct {
	sessions map[string]*storage.ConversationSession
	contexts map[uuid.UUID][]byte
	closed   []uuid.UUID
	touched  []uuid.UUID
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sessions: map[string]*storage.ConversationSession{},
		contexts: map[uuid.UUID][]byte{},
	}
}

func (s *fakeSessionStore) Create(_ context.Context, session *storage.ConversationSession) error {
	s.sessions[session.SessionKey] = session
	return nil
}

func (s *fakeSessionStore) GetByKey(_ context.Context, key string) (*storage.ConversationSession, error) {
	session, ok := s.sessions[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return session, nil
}

func (s *fakeSessionStore) Touch(_ context.Context, id uuid.UUID) error {
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeSessionStore) UpdateContext(_ context.Context, id uuid.UUID, payload []byte) error {
	s.contexts[id] = payload
	return nil
}

func (s *fakeSessionStore) Close(_ context.Context, id uuid.UUID) error {
	s.closed = append(s.closed, id)
	return nil
}

type fakeMessageStore struct {
	messages []*storage.Message
}

func (m *fakeMessageStore) Create(_ context.Context, msg *storage.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

type fakeResolver struct {
	result *resolver.Result
	calls  int
}

func (r *fakeResolver) Resolve(context.Context, string) (*resolver.Result, error) {
	r.calls++
	return r.result, nil
}

type fakeHumanizer struct {
	reply *humanizer.Reply
	calls int
}

func (h *fakeHumanizer) Humanize(_ context.Context, _ *storage.ConversationSession, res *resolver.Result) *humanizer.Reply {
	h.calls++
	if h.reply != nil {
		return h.reply
	}
	return &humanizer.Reply{Text: res.Answer, Source: res.Source, Actions: res.Actions}
}

type fakeEscalator struct {
	pending       *escalation.Outcome
	deferral      *escalation.Outcome
	deferralCalls []string
}

func (e *fakeEscalator) ProcessPending(context.Context, *storage.ConversationSession, string) (*escalation.Outcome, error) {
	return e.pending, nil
}

func (e *fakeEscalator) HandleDeferral(_ context.Context, _ *storage.ConversationSession, data string) (*escalation.Outcome, error) {
	e.deferralCalls = append(e.deferralCalls, data)
	return e.deferral, nil
}

type chatEnv struct {
	svc       *Service
	sessions  *fakeSessionStore
	messages  *fakeMessageStore
	resolver  *fakeResolver
	humanizer *fakeHumanizer
	escalator *fakeEscalator
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()

	env := &chatEnv{
		sessions: newFakeSessionStore(),
		messages: &fakeMessageStore{},
		resolver: &fakeResolver{result: &resolver.Result{
			Intent: intent.Saludo,
			Answer: "¡Hola!",
			Source: storage.SourceHardcoded,
		}},
		humanizer: &fakeHumanizer{},
		escalator: &fakeEscalator{},
	}
	env.svc = NewService(env.sessions, env.messages, env.resolver, env.humanizer,
		env.escalator, "¡Hola! Soy el asistente virtual.", 24*time.Hour,
		observability.DefaultLogger(),
		WithClock(func() time.Time {
			return time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
		}))
	return env
}

func (env *chatEnv) openSession(t *testing.T) *storage.ConversationSession {
	t.Helper()
	turn, err := env.svc.Welcome(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	return env.sessions.sessions[turn.SessionKey]
}

func TestWelcomeOpensSessionWithGreeting(t *testing.T) {
	env := newChatEnv(t)

	turn, err := env.svc.Welcome(context.Background(), "203.0.113.7")
	require.NoError(t, err)

	assert.NotEmpty(t, turn.SessionKey)
	assert.Equal(t, "¡Hola! Soy el asistente virtual.", turn.Text)
	assert.Equal(t, "bienvenida", turn.Intent)

	session := env.sessions.sessions[turn.SessionKey]
	require.NotNil(t, session)
	assert.True(t, session.Active)
	assert.Equal(t, "203.0.113.7", session.IPAddress)

	require.Len(t, env.messages.messages, 1)
	assert.Equal(t, storage.RoleAssistant, env.messages.messages[0].Role)
	assert.Equal(t, "¡Hola! Soy el asistente virtual.", env.messages.messages[0].Content)
}

func TestHandleUnknownSessionFails(t *testing.T) {
	env := newChatEnv(t)

	_, err := env.svc.Handle(context.Background(), "no-such-key", "hola")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestHandleExpiredSessionClosesIt(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)
	session.LastActivityAt = time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)

	_, err := env.svc.Handle(context.Background(), session.SessionKey, "hola")

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, []uuid.UUID{session.ID}, env.sessions.closed)
}

func TestHandlePersistsBothTurnMessages(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)

	turn, err := env.svc.Handle(context.Background(), session.SessionKey, "hola")
	require.NoError(t, err)

	assert.Equal(t, "¡Hola!", turn.Text)
	assert.Equal(t, "saludo", turn.Intent)
	assert.Equal(t, "hardcoded", turn.Source)
	assert.False(t, turn.SessionClosed)

	// Welcome message plus the user/assistant pair.
	require.Len(t, env.messages.messages, 3)
	userMsg := env.messages.messages[1]
	assert.Equal(t, storage.RoleUser, userMsg.Role)
	assert.Equal(t, "hola", userMsg.Content)

	assistantMsg := env.messages.messages[2]
	assert.Equal(t, storage.RoleAssistant, assistantMsg.Role)
	assert.Equal(t, "saludo", assistantMsg.Intent)
	assert.Equal(t, storage.SourceHardcoded, assistantMsg.Source)

	assert.Equal(t, []uuid.UUID{session.ID}, env.sessions.touched)
}

func TestHandlePendingContextBypassesResolver(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)
	env.escalator.pending = &escalation.Outcome{
		Reply:         "📲 Te paso el link directo.",
		Intent:        intent.HablarConOperador,
		Source:        storage.SourceHardcoded,
		SessionClosed: true,
	}

	turn, err := env.svc.Handle(context.Background(), session.SessionKey, "Planta Centro")
	require.NoError(t, err)

	assert.Equal(t, "📲 Te paso el link directo.", turn.Text)
	assert.True(t, turn.SessionClosed)
	assert.Zero(t, env.resolver.calls)
	assert.Zero(t, env.humanizer.calls)
}

func TestHandleDeferralRoutesToEscalator(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)
	branchID := uuid.New()
	env.resolver.result = &resolver.Result{
		Intent: intent.HablarConOperador,
		Data:   "derivacion_whatsapp|" + branchID.String(),
		Source: storage.SourceDB,
	}
	env.escalator.deferral = &escalation.Outcome{
		Reply:         "📲 Te paso el link...",
		Intent:        intent.HablarConOperador,
		Source:        storage.SourceHardcoded,
		SessionClosed: true,
	}

	turn, err := env.svc.Handle(context.Background(), session.SessionKey, "quiero hablar con un operador")
	require.NoError(t, err)

	assert.True(t, turn.SessionClosed)
	assert.Equal(t, []string{"derivacion_whatsapp|" + branchID.String()}, env.escalator.deferralCalls)
	assert.Zero(t, env.humanizer.calls)
}

func TestHandleStoresBranchSelectionContext(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)
	actions := []resolver.Action{
		{Label: "Planta Centro", Action: "seleccionar_planta_" + uuid.New().String()},
		{Label: "Planta Norte", Action: "seleccionar_planta_" + uuid.New().String()},
	}
	env.resolver.result = &resolver.Result{
		Intent:  intent.HablarConOperador,
		Answer:  "¿Con cuál de nuestras plantas querés comunicarte?",
		Source:  storage.SourceHardcoded,
		Actions: actions,
	}

	turn, err := env.svc.Handle(context.Background(), session.SessionKey, "quiero hablar con alguien")
	require.NoError(t, err)

	assert.Len(t, turn.Actions, 2)

	payload := env.sessions.contexts[session.ID]
	require.NotEmpty(t, payload)
	var pc escalation.PendingContext
	require.NoError(t, json.Unmarshal(payload, &pc))
	assert.Equal(t, escalation.AwaitingBranchSelection, pc.Awaiting)
	assert.Equal(t, string(intent.HablarConOperador), pc.OriginIntent)
	assert.Len(t, pc.PreviousActions, 2)
}

func TestHandleHumanizerActionsOverrideResolver(t *testing.T) {
	env := newChatEnv(t)
	session := env.openSession(t)
	env.resolver.result = &resolver.Result{
		Intent:        intent.ConsultarTarifa,
		Data:          "Tarifas de trámites RTV",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Actions: []resolver.Action{
			{Label: "📅 Sacar turno", URL: "/turnero/paso1/"},
		},
	}
	env.humanizer.reply = &humanizer.Reply{
		Text:   "😕 En este momento no cuento con esa información.",
		Source: storage.SourceHardcoded,
		UsedAI: true,
		Actions: []resolver.Action{
			{Label: "👤 Hablar con un operador", Action: "quiero hablar con un operador"},
		},
	}

	turn, err := env.svc.Handle(context.Background(), session.SessionKey, "cuanto cuesta otra cosa")
	require.NoError(t, err)

	require.Len(t, turn.Actions, 1)
	assert.Equal(t, "quiero hablar con un operador", turn.Actions[0].Action)
}
