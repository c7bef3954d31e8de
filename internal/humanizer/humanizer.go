// Package humanizer implements the generative layer. It takes the resolver
// output and turns raw data into natural Argentine Spanish, falling back to
// the raw data whenever the provider is unavailable or over budget.
package humanizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/ai"
	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/resolver"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// notRelevantSentinel is the word the model answers when the supplied data
// does not cover the question. Checked by substring because models sometimes
// wrap it in extra prose.
const notRelevantSentinel = "NO_RELEVANTE"

const (
	maxCachedQuestionLen = 500
	maxCachedContextLen  = 1000
	maxProposedFAQLen    = 500
)

const noInfoReply = "😕 En este momento no cuento con esa información para ayudarte. " +
	"Si querés, puedo derivarte con un operador para que te asista personalmente."

const outOfDomainReply = "Disculpá, solo puedo ayudarte con temas relacionados " +
	"a la Revisión Técnica Vehicular: turnos, tarifas, ubicación y servicios. " +
	"¿Tenés alguna consulta sobre estos temas?"

// Reply is the final assistant answer for one turn.
type Reply struct {
	Text       string
	Source     storage.AnswerSource
	TokensUsed int
	LatencyMs  int
	UsedAI     bool
	Actions    []resolver.Action
}

// SessionStore updates the per-session AI call counter.
type SessionStore interface {
	IncrementAICalls(ctx context.Context, id uuid.UUID) error
}

// CacheWriter stores successful rephrasings for reuse by the resolver.
type CacheWriter interface {
	Create(ctx context.Context, ca *storage.CachedAnswer) error
}

// FAQProposer creates unapproved FAQ candidates from successful AI answers.
type FAQProposer interface {
	ExistsByQuestion(ctx context.Context, question string) (bool, error)
	Create(ctx context.Context, faq *storage.FAQ) error
}

// UsageCounter exposes the daily successful-call count for rate limiting.
type UsageCounter interface {
	CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error)
}

// TopicTracker registers topics the assistant could not answer.
type TopicTracker interface {
	Track(ctx context.Context, topic, sessionKey string)
}

// Limits caps generative calls per session and per day.
type Limits struct {
	MaxCallsPerSession int
	MaxCallsPerDay     int
}

// Humanizer turns resolver results into final replies.
type Humanizer struct {
	provider ai.Provider
	sessions SessionStore
	cache    CacheWriter
	faqs     FAQProposer
	usage    UsageCounter
	topics   TopicTracker

	systemPrompt string
	errorMessage string
	limits       Limits
	logger       *observability.Logger
	now          func() time.Time
}

// Option customizes a Humanizer.
type Option func(*Humanizer)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(h *Humanizer) { h.now = now }
}

// New builds a Humanizer.
func New(provider ai.Provider, sessions SessionStore, cache CacheWriter, faqs FAQProposer,
	usage UsageCounter, topics TopicTracker, systemPrompt, errorMessage string,
	limits Limits, logger *observability.Logger, opts ...Option) *Humanizer {
	h := &Humanizer{
		provider:     provider,
		sessions:     sessions,
		cache:        cache,
		faqs:         faqs,
		usage:        usage,
		topics:       topics,
		systemPrompt: systemPrompt,
		errorMessage: errorMessage,
		limits:       limits,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Humanize produces the final reply for a resolver result. Literal answers
// pass through untouched; only data rephrasing and full generation reach the
// provider, and both degrade to a non-AI reply on any failure.
func (h *Humanizer) Humanize(ctx context.Context, session *storage.ConversationSession, res *resolver.Result) *Reply {
	if res.Answer != "" {
		return &Reply{Text: res.Answer, Source: res.Source, Actions: res.Actions}
	}

	if res.NeedsHumanize && res.Data != "" {
		return h.humanizeData(ctx, session, res)
	}

	if res.NeedsFullAI {
		return h.fullGeneration(ctx, session, res)
	}

	return &Reply{Text: h.errorMessage, Source: res.Source, Actions: res.Actions}
}

// humanizeData asks the model for a short rephrasing of data the resolver
// already found. The raw data is always a usable answer, so every failure
// path returns it unchanged.
func (h *Humanizer) humanizeData(ctx context.Context, session *storage.ConversationSession, res *resolver.Result) *Reply {
	raw := &Reply{Text: res.Data, Source: res.Source, Actions: res.Actions}

	if !h.withinLimits(ctx, session) {
		return raw
	}

	prompt := fmt.Sprintf(
		"Sos un asistente virtual de una empresa de Revisión Técnica Vehicular.\n"+
			"El usuario preguntó: %q\n\n"+
			"Se encontró la siguiente información en el sistema:\n%s\n\n"+
			"INSTRUCCIONES:\n"+
			"- Si la información responde lo que el usuario preguntó, reformulala de manera "+
			"natural, amable y concisa en español argentino. Máximo 2-3 oraciones. NO inventes datos.\n"+
			"- Usá emojis relevantes (1-2 máximo) para hacer la respuesta más amigable "+
			"(ej: 🚗 para vehículos, 📋 para turnos, 💰 para tarifas, 📍 para ubicación, ✅ para confirmaciones).\n"+
			"- Si la información NO es relevante para lo que el usuario pidió, "+
			"respondé SOLO con la palabra: NO_RELEVANTE",
		res.Question, res.Data)

	aiRes, err := h.generate(ctx, session, prompt)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Rephrasing failed, returning raw data")
		return raw
	}

	reply := &Reply{
		Source:     res.Source,
		TokensUsed: aiRes.TokensInput + aiRes.TokensOutput,
		LatencyMs:  aiRes.LatencyMs,
		UsedAI:     true,
		Actions:    res.Actions,
	}

	text := strings.TrimSpace(aiRes.Text)
	if strings.Contains(text, notRelevantSentinel) {
		// The resolver found data but the model judged it off-topic.
		reply.Text = noInfoReply
		reply.Source = storage.SourceHardcoded
		reply.Actions = []resolver.Action{operatorAction()}
		h.track(ctx, session, res.Question)
		return reply
	}

	reply.Text = text
	h.storeCachedAnswer(ctx, res, text)
	return reply
}

// fullGeneration answers questions the resolver could not ground, optionally
// backed by knowledge-base fragments.
func (h *Humanizer) fullGeneration(ctx context.Context, session *storage.ConversationSession, res *resolver.Result) *Reply {
	fallback := &Reply{Text: h.errorMessage, Source: storage.SourceAI}

	if !h.withinLimits(ctx, session) {
		return fallback
	}

	var sb strings.Builder
	sb.WriteString("Si la consulta NO está relacionada con revisión técnica vehicular, turnos, " +
		"tarifas, ubicación o servicios de RTV, o si no tenés la información para responder, " +
		"respondé SOLO con la palabra: NO_RELEVANTE\n\n")

	if len(res.Fragments) > 0 {
		sb.WriteString("INFORMACIÓN DE LA BASE DE CONOCIMIENTO:\n")
		for i, frag := range res.Fragments {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			fmt.Fprintf(&sb, "[Documento: %s]\n%s", frag.Title, frag.Fragment)
		}
		sb.WriteString("\n\nUsá la información anterior para responder la consulta del cliente. " +
			"Si la información no es suficiente para una respuesta completa, indicalo amablemente.\n\n")
	}

	fmt.Fprintf(&sb, "Consulta del usuario: %q\n\n", res.Data)
	sb.WriteString("Si podés responder, hacelo de forma natural, amable y concisa en español argentino. " +
		"Usá 1-2 emojis relevantes para hacer la respuesta más amigable " +
		"(ej: 🚗 vehículos, 📋 turnos, 💰 tarifas, 📍 ubicación, ✅ confirmaciones).")

	aiRes, err := h.generate(ctx, session, sb.String())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Full generation failed")
		return fallback
	}

	reply := &Reply{
		Source:     storage.SourceAI,
		TokensUsed: aiRes.TokensInput + aiRes.TokensOutput,
		LatencyMs:  aiRes.LatencyMs,
		UsedAI:     true,
	}
	if res.Source == storage.SourceKBAI {
		reply.Source = storage.SourceKBAI
	}

	text := strings.TrimSpace(aiRes.Text)
	if strings.Contains(text, notRelevantSentinel) {
		reply.Source = storage.SourceHardcoded
		if h.outOfDomain(res) {
			// No RTV angle at all; an operator could not help either.
			reply.Text = outOfDomainReply
		} else {
			reply.Text = noInfoReply
			reply.Actions = []resolver.Action{operatorAction()}
		}
		h.track(ctx, session, res.Data)
		return reply
	}

	reply.Text = text
	h.proposeFAQ(ctx, res, text)
	if res.Intent == intent.Desconocido || res.Intent == "" {
		h.track(ctx, session, res.Data)
	}
	return reply
}

// generate runs one provider call and bumps the session counter on success.
func (h *Humanizer) generate(ctx context.Context, session *storage.ConversationSession, prompt string) (*ai.Result, error) {
	req := ai.Request{Prompt: prompt, SystemPrompt: h.systemPrompt}
	if session != nil {
		req.SessionID = session.ID.String()
	}

	res, err := h.provider.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("provider call failed: %s", res.Error)
	}

	if session != nil {
		if err := h.sessions.IncrementAICalls(ctx, session.ID); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to bump session AI counter")
		}
		session.AICallsCount++
	}
	return res, nil
}

// withinLimits checks the per-session and daily call ceilings before a
// provider call. Only successful calls count toward the daily ceiling.
func (h *Humanizer) withinLimits(ctx context.Context, session *storage.ConversationSession) bool {
	if session != nil && session.AICallsCount >= h.limits.MaxCallsPerSession {
		h.logger.Warn().Str("session_key", session.SessionKey).Msg("Per-session AI limit reached")
		return false
	}

	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := h.usage.CountSuccessfulSince(ctx, midnight)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to count daily AI usage")
		return true
	}
	if today >= int64(h.limits.MaxCallsPerDay) {
		h.logger.Warn().Int64("calls_today", today).Msg("Daily AI limit reached")
		return false
	}
	return true
}

func (h *Humanizer) storeCachedAnswer(ctx context.Context, res *resolver.Result, answer string) {
	ca := &storage.CachedAnswer{
		ID:                 uuid.New(),
		Intent:             string(res.Intent),
		NormalizedQuestion: nlp.Truncate(nlp.Normalize(res.Data), maxCachedQuestionLen),
		ContextData:        nlp.Truncate(res.Data, maxCachedContextLen),
		Answer:             answer,
		Valid:              true,
	}
	if err := h.cache.Create(ctx, ca); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to cache rephrased answer")
	}
}

// proposeFAQ turns a successful answer into an unapproved FAQ candidate so
// reviewers can promote it instead of paying for the same generation again.
func (h *Humanizer) proposeFAQ(ctx context.Context, res *resolver.Result, answer string) {
	question := nlp.Truncate(res.Data, maxProposedFAQLen)
	if question == "" {
		return
	}

	exists, err := h.faqs.ExistsByQuestion(ctx, question)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to check for duplicate FAQ")
		return
	}
	if exists {
		return
	}

	category := "general"
	if res.Intent != intent.Desconocido && res.Intent != "" && res.Intent != "kb" {
		category = string(res.Intent)
	}

	faq := &storage.FAQ{
		ID:       uuid.New(),
		Question: question,
		Category: category,
		Answer:   answer,
		Origin:   storage.FAQOriginSugeridaIA,
		Approved: false,
		Active:   true,
	}
	if err := h.faqs.Create(ctx, faq); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to propose FAQ")
		return
	}
	h.logger.Info().Str("question", question).Msg("FAQ proposed from AI answer")
}

func (h *Humanizer) outOfDomain(res *resolver.Result) bool {
	return (res.Intent == intent.Desconocido || res.Intent == "") &&
		res.Source == storage.SourceNeedsAI
}

func (h *Humanizer) track(ctx context.Context, session *storage.ConversationSession, topic string) {
	if h.topics == nil {
		return
	}
	sessionKey := ""
	if session != nil {
		sessionKey = session.SessionKey
	}
	h.topics.Track(ctx, topic, sessionKey)
}

func operatorAction() resolver.Action {
	return resolver.Action{Label: "👤 Hablar con un operador", Action: "quiero hablar con un operador"}
}
