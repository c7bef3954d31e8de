package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type fakeSessionStore struct {
	contexts map[uuid.UUID][]byte
	closed   []uuid.UUID
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{contexts: map[uuid.UUID][]byte{}}
}

func (f *fakeSessionStore) UpdateContext(ctx context.Context, id uuid.UUID, payload []byte) error {
	f.contexts[id] = payload
	return nil
}

func (f *fakeSessionStore) Close(ctx context.Context, id uuid.UUID) error {
	f.closed = append(f.closed, id)
	return nil
}

type fakeMessageStore struct {
	messages []*storage.Message
}

func (f *fakeMessageStore) ListRecent(ctx context.Context, sessionID uuid.UUID, n int) ([]*storage.Message, error) {
	if len(f.messages) <= n {
		return f.messages, nil
	}
	return f.messages[len(f.messages)-n:], nil
}

func (f *fakeMessageStore) ListOldest(ctx context.Context, sessionID uuid.UUID, n int) ([]*storage.Message, error) {
	if len(f.messages) <= n {
		return f.messages, nil
	}
	return f.messages[:n], nil
}

type fakeHandoffStore struct {
	handoffs []*storage.Handoff
}

func (f *fakeHandoffStore) Create(ctx context.Context, h *storage.Handoff) error {
	f.handoffs = append(f.handoffs, h)
	return nil
}

type fakeBranchStore struct {
	branches []*storage.Branch
}

func (f *fakeBranchStore) GetByID(ctx context.Context, id uuid.UUID) (*storage.Branch, error) {
	for _, b := range f.branches {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeBranchStore) ListActive(ctx context.Context) ([]*storage.Branch, error) {
	return f.branches, nil
}

type fakeHandoffMailer struct {
	sent []string
	fail bool
}

func (f *fakeHandoffMailer) SendHandoff(ctx context.Context, branch *storage.Branch, session *storage.ConversationSession, summary, clientPhone string) error {
	if f.fail {
		return fmt.Errorf("smtp unavailable")
	}
	f.sent = append(f.sent, clientPhone)
	return nil
}

func testBranch() *storage.Branch {
	return &storage.Branch{
		ID:             uuid.New(),
		Name:           "Planta Centro",
		Phone:          "3814000000",
		WhatsApp:       "5493814123456",
		OperatorEmail:  "centro@rtvpioli.example",
		OpenTime:       "08:00",
		CloseTime:      "17:00",
		AttendanceDays: storage.StringList{"lunes", "martes", "miercoles", "jueves", "viernes"},
		Active:         true,
	}
}

func testSession() *storage.ConversationSession {
	return &storage.ConversationSession{
		ID:         uuid.New(),
		SessionKey: uuid.NewString(),
		StartedAt:  time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Context:    json.RawMessage("{}"),
		Active:     true,
	}
}

type flowEnv struct {
	flow     *Flow
	sessions *fakeSessionStore
	messages *fakeMessageStore
	handoffs *fakeHandoffStore
	branches *fakeBranchStore
	mailer   *fakeHandoffMailer
}

func newFlowEnv(t *testing.T, now time.Time) *flowEnv {
	t.Helper()
	env := &flowEnv{
		sessions: newFakeSessionStore(),
		messages: &fakeMessageStore{},
		handoffs: &fakeHandoffStore{},
		branches: &fakeBranchStore{branches: []*storage.Branch{testBranch()}},
		mailer:   &fakeHandoffMailer{},
	}
	env.flow = NewFlow(env.sessions, env.messages, env.handoffs, env.branches,
		env.mailer, observability.DefaultLogger(), WithClock(func() time.Time { return now }))
	return env
}

// Tuesday 2026-03-10 is an attendance day for the test branch.
var (
	tuesdayMorning = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	tuesdayNight   = time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	sundayMorning  = time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC)
)

func TestInHours(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		prepare  func(*storage.Branch)
		expected bool
	}{
		{name: "weekday within hours", now: tuesdayMorning, expected: true},
		{name: "after closing", now: tuesdayNight, expected: false},
		{name: "non attendance day", now: sundayMorning, expected: false},
		{
			name: "non working date",
			now:  tuesdayMorning,
			prepare: func(b *storage.Branch) {
				b.NonWorkingDates = storage.StringList{"2026-03-10"}
			},
			expected: false,
		},
		{
			name: "closing minute still counts",
			now:  time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testBranch()
			if tt.prepare != nil {
				tt.prepare(b)
			}
			assert.Equal(t, tt.expected, InHours(b, tt.now))
		})
	}
}

func TestWhatsAppLink(t *testing.T) {
	link := WhatsAppLink("5493814123456", "Cliente: hola")
	assert.True(t, strings.HasPrefix(link, "https://wa.me/5493814123456?text="))
	assert.Contains(t, link, "Hola%2C+vengo+del+asistente+virtual.")
}

func TestExtractPhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"381-412-3456 5", "38141234565"},
		{"mi celular es (381) 412-3456", "3814123456"},
		{"+549 381 412 3456", "5493814123456"},
		{"no tengo", ""},
		{"12345", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractPhone(tt.input), tt.input)
	}
}

func TestStartInHoursDefersToWhatsApp(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	branch := env.branches.branches[0]

	res, err := env.flow.Start(context.Background(), branch, intent.HablarConOperador, 0.8)
	require.NoError(t, err)

	assert.True(t, IsDeferral(res.Data))
	assert.Equal(t, fmt.Sprintf("derivacion_whatsapp|%s", branch.ID), res.Data)
	assert.False(t, res.NeedsHumanize)
}

func TestStartOutOfHoursDefersToEmail(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	branch := env.branches.branches[0]

	res, err := env.flow.Start(context.Background(), branch, intent.HablarConOperador, 0.8)
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("derivacion_email|%s", branch.ID), res.Data)
}

func TestStartInHoursWithoutWhatsAppFallsBackToPhone(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	branch := env.branches.branches[0]
	branch.WhatsApp = ""

	res, err := env.flow.Start(context.Background(), branch, intent.HablarConOperador, 0.8)
	require.NoError(t, err)

	assert.Empty(t, res.Data)
	assert.Contains(t, res.Answer, "3814000000")
}

func TestHandleDeferralWhatsAppClosesSession(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	branch := env.branches.branches[0]
	session := testSession()
	env.messages.messages = []*storage.Message{
		{Role: storage.RoleUser, Content: "quiero hablar con un operador"},
	}

	out, err := env.flow.HandleDeferral(context.Background(), session,
		fmt.Sprintf("derivacion_whatsapp|%s", branch.ID))
	require.NoError(t, err)

	assert.True(t, out.SessionClosed)
	assert.False(t, session.Active)
	assert.Contains(t, out.Reply, "Esta conversación se cierra")
	require.Len(t, out.Actions, 1)
	assert.Contains(t, out.Actions[0].URL, "https://wa.me/5493814123456?text=")
	assert.Equal(t, []uuid.UUID{session.ID}, env.sessions.closed)

	require.Len(t, env.handoffs.handoffs, 1)
	assert.Equal(t, storage.HandoffWhatsApp, env.handoffs.handoffs[0].Channel)
	assert.True(t, env.handoffs.handoffs[0].InHours)
}

func TestHandleDeferralEmailAsksForPhone(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	branch := env.branches.branches[0]
	session := testSession()

	out, err := env.flow.HandleDeferral(context.Background(), session,
		fmt.Sprintf("derivacion_email|%s", branch.ID))
	require.NoError(t, err)

	assert.False(t, out.SessionClosed)
	assert.Contains(t, out.Reply, "fuera del horario de atención")

	pc := ParsePendingContext(env.sessions.contexts[session.ID])
	assert.Equal(t, AwaitingPhoneNumber, pc.Awaiting)
	assert.Equal(t, branch.ID.String(), pc.BranchID)
}

func TestProcessPendingPhoneSendsEmailAndCloses(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	branch := env.branches.branches[0]
	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingPhoneNumber, BranchID: branch.ID.String()})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "381 412 3456")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.True(t, out.SessionClosed)
	assert.Contains(t, out.Reply, "Incluimos tu celular")
	assert.Equal(t, []string{"3814123456"}, env.mailer.sent)

	require.Len(t, env.handoffs.handoffs, 1)
	assert.Equal(t, storage.HandoffEmail, env.handoffs.handoffs[0].Channel)
	assert.True(t, env.handoffs.handoffs[0].EmailSent)
	assert.Equal(t, "3814123456", env.handoffs.handoffs[0].ClientPhone)
}

func TestProcessPendingSendWithoutPhone(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	branch := env.branches.branches[0]
	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingPhoneNumber, BranchID: branch.ID.String()})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "enviar")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.True(t, out.SessionClosed)
	assert.NotContains(t, out.Reply, "Incluimos tu celular")
	assert.Equal(t, []string{""}, env.mailer.sent)
}

func TestProcessPendingUnrecognizedPhoneReprompts(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	branch := env.branches.branches[0]
	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingPhoneNumber, BranchID: branch.ID.String()})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "mañana a la tarde")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.False(t, out.SessionClosed)
	assert.Contains(t, out.Reply, "No pude identificar un número de celular")
	assert.Empty(t, env.mailer.sent)
	assert.Empty(t, env.handoffs.handoffs)
}

func TestProcessPendingEmailFailureKeepsSessionOpen(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	env.mailer.fail = true
	branch := env.branches.branches[0]
	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingPhoneNumber, BranchID: branch.ID.String()})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "enviar")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.False(t, out.SessionClosed)
	assert.True(t, session.Active)
	assert.Contains(t, out.Reply, "No pudimos enviar el email")
	assert.Contains(t, out.Reply, "3814000000")
	assert.Empty(t, env.sessions.closed)

	require.Len(t, env.handoffs.handoffs, 1)
	assert.False(t, env.handoffs.handoffs[0].EmailSent)

	pcAfter := ParsePendingContext(env.sessions.contexts[session.ID])
	assert.Empty(t, pcAfter.Awaiting)
}

func TestProcessPendingBranchSelectionByName(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	north := testBranch()
	north.Name = "Planta Norte"
	env.branches.branches = append(env.branches.branches, north)

	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingBranchSelection})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "la planta norte por favor")
	require.NoError(t, err)
	require.NotNil(t, out)

	// In hours: straight to the WhatsApp link for the chosen branch.
	assert.True(t, out.SessionClosed)
	assert.Contains(t, out.Actions[0].Label, "Planta Norte")
}

func TestProcessPendingBranchSelectionByNumber(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	north := testBranch()
	north.Name = "Planta Norte"
	env.branches.branches = append(env.branches.branches, north)

	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingBranchSelection})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "2")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Contains(t, out.Reply, "Planta Norte")

	pcAfter := ParsePendingContext(env.sessions.contexts[session.ID])
	assert.Equal(t, AwaitingPhoneNumber, pcAfter.Awaiting)
	assert.Equal(t, north.ID.String(), pcAfter.BranchID)
}

func TestProcessPendingBranchSelectionUnrecognized(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	session := testSession()
	pc, _ := json.Marshal(PendingContext{
		Awaiting:        AwaitingBranchSelection,
		PreviousActions: []resolver.Action{{Label: "Planta Centro"}},
	})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "cualquier cosa")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Contains(t, out.Reply, "No pude identificar la planta")
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "Planta Centro", out.Actions[0].Label)
}

func TestProcessPendingStaleBranchResetsFlow(t *testing.T) {
	env := newFlowEnv(t, tuesdayNight)
	session := testSession()
	pc, _ := json.Marshal(PendingContext{Awaiting: AwaitingPhoneNumber, BranchID: uuid.NewString()})
	session.Context = pc

	out, err := env.flow.ProcessPending(context.Background(), session, "3814123456")
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Contains(t, out.Reply, "Hubo un problema")
	pcAfter := ParsePendingContext(env.sessions.contexts[session.ID])
	assert.Empty(t, pcAfter.Awaiting)
}

func TestProcessPendingNoContextReturnsNil(t *testing.T) {
	env := newFlowEnv(t, tuesdayMorning)
	session := testSession()

	out, err := env.flow.ProcessPending(context.Background(), session, "hola")
	require.NoError(t, err)
	assert.Nil(t, out)
}
