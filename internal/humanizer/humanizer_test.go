package humanizer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/ai"
	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/knowledge"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type fakeProvider struct {
	text    string
	err     error
	calls   int
	lastReq ai.Request
}

func (p *fakeProvider) Generate(_ context.Context, req ai.Request) (*ai.Result, error) {
	p.calls++
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Result{
		Text:         p.text,
		TokensInput:  100,
		TokensOutput: 40,
		LatencyMs:    250,
		Model:        "gemini-2.0-flash",
		Success:      true,
	}, nil
}

func (p *fakeProvider) TestConnection(context.Context) error { return nil }
func (p *fakeProvider) Name() string                         { return "fake" }

type fakeSessionStore struct {
	incremented []uuid.UUID
}

func (s *fakeSessionStore) IncrementAICalls(_ context.Context, id uuid.UUID) error {
	s.incremented = append(s.incremented, id)
	return nil
}

type fakeCacheWriter struct {
	created []*storage.CachedAnswer
}

func (c *fakeCacheWriter) Create(_ context.Context, ca *storage.CachedAnswer) error {
	c.created = append(c.created, ca)
	return nil
}

type fakeFAQProposer struct {
	exists  bool
	created []*storage.FAQ
}

func (f *fakeFAQProposer) ExistsByQuestion(context.Context, string) (bool, error) {
	return f.exists, nil
}

func (f *fakeFAQProposer) Create(_ context.Context, faq *storage.FAQ) error {
	f.created = append(f.created, faq)
	return nil
}

type fakeUsageCounter struct {
	count int64
}

func (u *fakeUsageCounter) CountSuccessfulSince(context.Context, time.Time) (int64, error) {
	return u.count, nil
}

type fakeTracker struct {
	topics []string
}

func (t *fakeTracker) Track(_ context.Context, topic, _ string) {
	t.topics = append(t.topics, topic)
}

type humanizerEnv struct {
	h        *Humanizer
	provider *fakeProvider
	sessions *fakeSessionStore
	cache    *fakeCacheWriter
	faqs     *fakeFAQProposer
	usage    *fakeUsageCounter
	tracker  *fakeTracker
}

func newHumanizerEnv(t *testing.T) *humanizerEnv {
	t.Helper()

	env := &humanizerEnv{
		provider: &fakeProvider{text: "respuesta generada"},
		sessions: &fakeSessionStore{},
		cache:    &fakeCacheWriter{},
		faqs:     &fakeFAQProposer{},
		usage:    &fakeUsageCounter{},
		tracker:  &fakeTracker{},
	}
	env.h = New(
		env.provider, env.sessions, env.cache, env.faqs, env.usage, env.tracker,
		"Sos el asistente de RTV Pioli.",
		"Perdón, tuve un problema procesando tu consulta.",
		Limits{MaxCallsPerSession: 20, MaxCallsPerDay: 500},
		observability.DefaultLogger(),
		WithClock(func() time.Time {
			return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
		}),
	)
	return env
}

func testSession() *storage.ConversationSession {
	return &storage.ConversationSession{
		ID:         uuid.New(),
		SessionKey: "sess-test-1",
		Active:     true,
	}
}

func TestHumanizeLiteralAnswerPassesThrough(t *testing.T) {
	env := newHumanizerEnv(t)

	res := &resolver.Result{
		Intent: intent.Saludo,
		Answer: "¡Hola! ¿En qué puedo ayudarte?",
		Source: storage.SourceHardcoded,
		Actions: []resolver.Action{
			{Label: "💰 Ver tarifas", Action: "cuanto cuesta"},
		},
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Equal(t, "¡Hola! ¿En qué puedo ayudarte?", reply.Text)
	assert.Equal(t, storage.SourceHardcoded, reply.Source)
	assert.False(t, reply.UsedAI)
	assert.Len(t, reply.Actions, 1)
	assert.Zero(t, env.provider.calls)
}

func TestHumanizeDataRephrasesAndCaches(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "💰 La revisión de un auto cuesta $28.500."
	session := testSession()

	res := &resolver.Result{
		Intent:        intent.ConsultarTarifa,
		Data:          "Tarifas de trámites RTV:\n- Auto: $28.500",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Question:      "cuanto cuesta la revision de un auto",
	}

	reply := env.h.Humanize(context.Background(), session, res)

	assert.Equal(t, "💰 La revisión de un auto cuesta $28.500.", reply.Text)
	assert.Equal(t, storage.SourceDB, reply.Source)
	assert.True(t, reply.UsedAI)
	assert.Equal(t, 140, reply.TokensUsed)
	assert.Equal(t, 250, reply.LatencyMs)

	assert.Contains(t, env.provider.lastReq.Prompt, "cuanto cuesta la revision de un auto")
	assert.Contains(t, env.provider.lastReq.Prompt, "Auto: $28.500")
	assert.Equal(t, session.ID.String(), env.provider.lastReq.SessionID)

	require.Len(t, env.cache.created, 1)
	assert.Equal(t, string(intent.ConsultarTarifa), env.cache.created[0].Intent)
	assert.Equal(t, "💰 La revisión de un auto cuesta $28.500.", env.cache.created[0].Answer)

	assert.Equal(t, 1, session.AICallsCount)
	assert.Equal(t, []uuid.UUID{session.ID}, env.sessions.incremented)
}

func TestHumanizeDataSessionLimitReturnsRawData(t *testing.T) {
	env := newHumanizerEnv(t)
	session := testSession()
	session.AICallsCount = 20

	res := &resolver.Result{
		Intent:        intent.ConsultarTarifa,
		Data:          "Tarifas de trámites RTV:\n- Auto: $28.500",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Question:      "cuanto cuesta",
	}

	reply := env.h.Humanize(context.Background(), session, res)

	assert.Equal(t, res.Data, reply.Text)
	assert.False(t, reply.UsedAI)
	assert.Zero(t, env.provider.calls)
}

func TestHumanizeDataDailyLimitReturnsRawData(t *testing.T) {
	env := newHumanizerEnv(t)
	env.usage.count = 500

	res := &resolver.Result{
		Intent:        intent.ConsultarTarifa,
		Data:          "Tarifas de trámites RTV:\n- Auto: $28.500",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Question:      "cuanto cuesta",
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Equal(t, res.Data, reply.Text)
	assert.False(t, reply.UsedAI)
	assert.Zero(t, env.provider.calls)
}

func TestHumanizeDataProviderFailureReturnsRawData(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.err = errors.New("deadline exceeded")
	session := testSession()

	res := &resolver.Result{
		Intent:        intent.ConsultarUbicacion,
		Data:          "Nuestras plantas:\n- Planta Centro",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Question:      "donde estan",
	}

	reply := env.h.Humanize(context.Background(), session, res)

	assert.Equal(t, res.Data, reply.Text)
	assert.False(t, reply.UsedAI)
	assert.Zero(t, session.AICallsCount)
	assert.Empty(t, env.cache.created)
}

func TestHumanizeDataSentinelOffersOperator(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "NO_RELEVANTE"

	res := &resolver.Result{
		Intent:        intent.ConsultarTarifa,
		Data:          "Tarifas de trámites RTV:\n- Auto: $28.500",
		Source:        storage.SourceDB,
		NeedsHumanize: true,
		Question:      "cuanto cuesta renovar la licencia de conducir",
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Contains(t, reply.Text, "no cuento con esa información")
	assert.Equal(t, storage.SourceHardcoded, reply.Source)
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, "quiero hablar con un operador", reply.Actions[0].Action)
	assert.Equal(t, []string{"cuanto cuesta renovar la licencia de conducir"}, env.tracker.topics)
	assert.Empty(t, env.cache.created)
}

func TestFullGenerationProposesFAQAndTracksUnknown(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "🚗 Sí, podés venir con el auto recién lavado."

	res := &resolver.Result{
		Intent:      intent.Desconocido,
		Data:        "puedo llevar el auto recien lavado",
		Source:      storage.SourceNeedsAI,
		NeedsFullAI: true,
		Question:    "puedo llevar el auto recien lavado",
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Equal(t, "🚗 Sí, podés venir con el auto recién lavado.", reply.Text)
	assert.Equal(t, storage.SourceAI, reply.Source)
	assert.True(t, reply.UsedAI)

	require.Len(t, env.faqs.created, 1)
	assert.Equal(t, "puedo llevar el auto recien lavado", env.faqs.created[0].Question)
	assert.Equal(t, "general", env.faqs.created[0].Category)
	assert.Equal(t, storage.FAQOriginSugeridaIA, env.faqs.created[0].Origin)
	assert.False(t, env.faqs.created[0].Approved)

	assert.Equal(t, []string{"puedo llevar el auto recien lavado"}, env.tracker.topics)
}

func TestFullGenerationSkipsDuplicateFAQ(t *testing.T) {
	env := newHumanizerEnv(t)
	env.faqs.exists = true

	res := &resolver.Result{
		Intent:      intent.ConsultarServicios,
		Data:        "que documentacion necesito",
		Source:      storage.SourceNeedsAI,
		NeedsFullAI: true,
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.True(t, reply.UsedAI)
	assert.Empty(t, env.faqs.created)
	assert.Empty(t, env.tracker.topics)
}

func TestFullGenerationInjectsKnowledgeFragments(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "📋 Tenés 60 días para la reinspección."

	res := &resolver.Result{
		Intent:      "kb",
		Data:        "cuanto tiempo tengo para la reinspeccion",
		Source:      storage.SourceKBAI,
		NeedsFullAI: true,
		Fragments: []knowledge.Result{
			{Title: "Reinspección", Fragment: "La reinspección debe realizarse dentro de los 60 días."},
		},
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Equal(t, storage.SourceKBAI, reply.Source)
	assert.Contains(t, env.provider.lastReq.Prompt, "[Documento: Reinspección]")
	assert.Contains(t, env.provider.lastReq.Prompt, "dentro de los 60 días")
	assert.Contains(t, env.provider.lastReq.Prompt, "INFORMACIÓN DE LA BASE DE CONOCIMIENTO")
}

func TestFullGenerationOutOfDomainRefusesWithoutOperator(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "NO_RELEVANTE"

	res := &resolver.Result{
		Intent:      intent.Desconocido,
		Data:        "que pronostico hay para mañana",
		Source:      storage.SourceNeedsAI,
		NeedsFullAI: true,
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Contains(t, reply.Text, "solo puedo ayudarte con temas relacionados")
	assert.Equal(t, storage.SourceHardcoded, reply.Source)
	assert.Empty(t, reply.Actions)
	assert.Equal(t, []string{"que pronostico hay para mañana"}, env.tracker.topics)
}

func TestFullGenerationInDomainSentinelOffersOperator(t *testing.T) {
	env := newHumanizerEnv(t)
	env.provider.text = "NO_RELEVANTE"

	res := &resolver.Result{
		Intent:      "kb",
		Data:        "aceptan vehiculos importados sin patentar",
		Source:      storage.SourceKBAI,
		NeedsFullAI: true,
		Fragments: []knowledge.Result{
			{Title: "Requisitos", Fragment: "Documentación obligatoria del vehículo."},
		},
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Contains(t, reply.Text, "no cuento con esa información")
	require.Len(t, reply.Actions, 1)
	assert.Equal(t, "quiero hablar con un operador", reply.Actions[0].Action)
}

func TestFullGenerationLimitReturnsErrorMessage(t *testing.T) {
	env := newHumanizerEnv(t)
	env.usage.count = 500

	res := &resolver.Result{
		Intent:      intent.Desconocido,
		Data:        "alguna consulta",
		Source:      storage.SourceNeedsAI,
		NeedsFullAI: true,
	}

	reply := env.h.Humanize(context.Background(), testSession(), res)

	assert.Equal(t, "Perdón, tuve un problema procesando tu consulta.", reply.Text)
	assert.False(t, reply.UsedAI)
	assert.Zero(t, env.provider.calls)
}
