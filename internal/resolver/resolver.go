// Package resolver implements the deterministic answer layer. It decides
// WHICH data answers a message without calling the AI: canned replies,
// approved FAQs, cached answers, database handlers and knowledge-base hits,
// in that order.
package resolver

import (
	"context"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/intent"
	"github.com/rtvpioli/assistant-engine/internal/knowledge"
	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// compoundThreshold is the minimum data-intent confidence needed for a long
// greeting-prefixed message to be rerouted to its real question.
// confirmThreshold is the confidence below which priority intents ask for
// confirmation before running their handler.
const (
	compoundThreshold = 0.33
	confirmThreshold  = 0.6
	compoundMinWords  = 5

	defaultCacheSimilarity = 0.8
)

var (
	ticketPattern      = regexp.MustCompile(`TRN-[A-Fa-f0-9]{4,}`)
	ticketExactPattern = regexp.MustCompile(`TRN-[A-Fa-f0-9]{6}`)
	platePattern       = regexp.MustCompile(`^[A-Z]{2,3}[0-9]{3}[A-Z]{0,3}$`)
	plateTokenPattern  = regexp.MustCompile(`[A-Za-z]{2,3}[0-9]{3}[A-Za-z]{0,3}`)
	plateSeparators    = regexp.MustCompile(`[\s\-.]`)
)

// Action is a quick-reply button attached to an answer. Exactly one of
// Action, URL or ScrollTo is set.
type Action struct {
	Label    string `json:"label"`
	Action   string `json:"action,omitempty"`
	URL      string `json:"url,omitempty"`
	ScrollTo string `json:"scroll_to,omitempty"`
}

// Result is the resolver output for one message. Answer and NeedsFullAI are
// mutually exclusive: a literal answer never also requests full generation.
type Result struct {
	Intent        intent.ID
	Data          string
	Source        storage.AnswerSource
	Answer        string
	NeedsHumanize bool
	NeedsFullAI   bool
	FAQID         uuid.UUID
	Actions       []Action
	Confidence    float64
	Question      string
	Fragments     []knowledge.Result
}

// FAQStore is the approved-FAQ lookup surface.
type FAQStore interface {
	ListApproved(ctx context.Context) ([]*storage.FAQ, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

// CacheStore is the cached-answer lookup surface.
type CacheStore interface {
	ListValidByIntent(ctx context.Context, intentID string) ([]*storage.CachedAnswer, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
}

// TariffStore, BranchStore and AppointmentStore expose the read-mostly
// catalog records the data handlers consume.
type TariffStore interface {
	ListActive(ctx context.Context) ([]*storage.Tariff, error)
}

type BranchStore interface {
	ListActive(ctx context.Context) ([]*storage.Branch, error)
}

type AppointmentStore interface {
	GetByTicketCode(ctx context.Context, code string) (*storage.Appointment, error)
	GetByPlate(ctx context.Context, plate string) (*storage.Appointment, error)
}

// KnowledgeSearcher finds document fragments for a free-text query.
type KnowledgeSearcher interface {
	Search(ctx context.Context, query string) ([]knowledge.Result, error)
}

// OperatorStarter begins the operator handoff flow for a branch. The
// escalation package provides the implementation.
type OperatorStarter interface {
	Start(ctx context.Context, branch *storage.Branch, intentID intent.ID, confidence float64) (*Result, error)
}

// AppointmentNotifier sends the secured cancellation and rescheduling links.
type AppointmentNotifier interface {
	SendCancellationLink(ctx context.Context, appt *storage.Appointment) error
	SendRescheduleLink(ctx context.Context, appt *storage.Appointment) error
}

// Resolver runs the deterministic pipeline.
type Resolver struct {
	classifier   *intent.Classifier
	faqs         FAQStore
	cache        CacheStore
	tariffs      TariffStore
	branches     BranchStore
	appointments AppointmentStore
	kb           KnowledgeSearcher
	operator     OperatorStarter
	notifier     AppointmentNotifier
	logger       *observability.Logger
	rng          *rand.Rand
	now          func() time.Time
	// cacheSimilarity is the minimum word overlap for a cached answer hit.
	cacheSimilarity float64
}

// Option configures optional Resolver collaborators.
type Option func(*Resolver)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithRand overrides the canned-reply RNG, for tests.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) { r.rng = rng }
}

// WithCacheSimilarity overrides the cached-answer match threshold.
func WithCacheSimilarity(v float64) Option {
	return func(r *Resolver) {
		if v > 0 {
			r.cacheSimilarity = v
		}
	}
}

func New(faqs FAQStore, cache CacheStore, tariffs TariffStore, branches BranchStore,
	appointments AppointmentStore, kb KnowledgeSearcher, operator OperatorStarter,
	notifier AppointmentNotifier, logger *observability.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		classifier:   intent.NewClassifier(),
		faqs:         faqs,
		cache:        cache,
		tariffs:      tariffs,
		branches:     branches,
		appointments: appointments,
		kb:           kb,
		operator:     operator,
		notifier:     notifier,
		logger:       logger,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,

		cacheSimilarity: defaultCacheSimilarity,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve analyzes the message and returns an answer or a request for
// generation, never both.
func (r *Resolver) Resolve(ctx context.Context, text string) (*Result, error) {
	normalized := nlp.Normalize(text)

	match, _ := r.classifier.Classify(text)
	intentID := match.Intent
	confidence := match.Confidence

	// Canned intents answer directly, unless the message is long enough to
	// hide a real question behind the greeting.
	if intent.IsFixed(intentID) {
		if len(nlp.Words(normalized)) >= compoundMinWords {
			if dataMatch, ok := r.classifier.ClassifyData(text); ok && dataMatch.Confidence >= compoundThreshold {
				intentID = dataMatch.Intent
				confidence = dataMatch.Confidence
			} else {
				return r.fixedReply(intentID, confidence, text), nil
			}
		} else {
			return r.fixedReply(intentID, confidence, text), nil
		}
	}

	// A ticket code in the message forces the matching appointment handler.
	// The code itself disambiguates, so no confirmation prompt applies.
	if ticketPattern.MatchString(strings.ToUpper(text)) {
		handlerIntent := intentID
		if handlerIntent != intent.ReprogramarTurno && handlerIntent != intent.CancelarTurno {
			handlerIntent = intent.ConsultarTurno
		}
		res, err := r.runHandler(ctx, handlerIntent, text, max(confidence, 0.9))
		if err != nil {
			return nil, err
		}
		if res != nil {
			res.Question = text
			return res, nil
		}
	}

	// Priority intents skip FAQ and cache so generic entries cannot shadow
	// flows with special logic.
	if intent.IsPriority(intentID) {
		if confidence < confirmThreshold {
			if res := confirmationPrompt(intentID, confidence, text); res != nil {
				return res, nil
			}
		}
		res, err := r.runHandler(ctx, intentID, text, confidence)
		if err != nil {
			return nil, err
		}
		if res != nil {
			res.Question = text
			return res, nil
		}
	}

	// A lone Argentine plate (ABC123 or AB123CD) is an appointment lookup.
	stripped := strings.ToUpper(plateSeparators.ReplaceAllString(strings.TrimSpace(text), ""))
	if (len(stripped) == 6 || len(stripped) == 7) && platePattern.MatchString(stripped) {
		res, err := r.lookupAppointment(ctx, stripped, intent.ConsultarTurno, 0.8)
		if err != nil {
			return nil, err
		}
		res.Question = text
		return res, nil
	}

	if res, err := r.matchFAQ(ctx, normalized); err != nil {
		return nil, err
	} else if res != nil {
		res.Question = text
		return res, nil
	}

	if res, err := r.matchCache(ctx, normalized, intentID); err != nil {
		return nil, err
	} else if res != nil {
		res.Question = text
		return res, nil
	}

	if res, err := r.runHandler(ctx, intentID, text, confidence); err != nil {
		return nil, err
	} else if res != nil {
		res.Question = text
		return res, nil
	}

	fragments, err := r.kb.Search(ctx, text)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Knowledge base search failed")
	}
	if len(fragments) > 0 {
		kbIntent := intentID
		if kbIntent == intent.Desconocido {
			kbIntent = "kb"
		}
		return &Result{
			Intent:      kbIntent,
			Data:        text,
			Source:      storage.SourceKBAI,
			NeedsFullAI: true,
			Confidence:  confidence,
			Question:    text,
			Fragments:   fragments,
		}, nil
	}

	return &Result{
		Intent:      intentID,
		Data:        text,
		Source:      storage.SourceNeedsAI,
		NeedsFullAI: true,
		Confidence:  confidence,
		Question:    text,
	}, nil
}

func (r *Resolver) fixedReply(intentID intent.ID, confidence float64, question string) *Result {
	reply, ok := intent.FixedReply(intentID, r.rng)
	if !ok {
		reply = "Hola, ¿en qué puedo ayudarte?"
	}
	return &Result{
		Intent:     intentID,
		Answer:     reply,
		Source:     storage.SourceHardcoded,
		Confidence: confidence,
		Question:   question,
	}
}

// confirmationPrompt is the typo safety net: a low-confidence priority
// match asks before running its flow.
func confirmationPrompt(intentID intent.ID, confidence float64, question string) *Result {
	var prompt, yesLabel, yesAction string
	switch intentID {
	case intent.CancelarTurno:
		prompt = "¿Querés cancelar un turno?"
		yesLabel = "✅ Sí, cancelar turno"
		yesAction = "quiero cancelar mi turno"
	case intent.ReprogramarTurno:
		prompt = "¿Querés reprogramar un turno?"
		yesLabel = "✅ Sí, reprogramar turno"
		yesAction = "quiero reprogramar mi turno"
	case intent.HablarConOperador:
		prompt = "¿Querés hablar con un operador?"
		yesLabel = "✅ Sí, hablar con operador"
		yesAction = "quiero hablar con un operador"
	default:
		return nil
	}
	return &Result{
		Intent:     intentID,
		Answer:     "🤔 Disculpá, no entendí bien. " + prompt,
		Source:     storage.SourceHardcoded,
		Confidence: confidence,
		Question:   question,
		Actions: []Action{
			{Label: yesLabel, Action: yesAction},
			{Label: "❌ No, otra consulta", Action: "no gracias, otra consulta"},
		},
	}
}

func (r *Resolver) matchFAQ(ctx context.Context, normalized string) (*Result, error) {
	faqs, err := r.faqs.ListApproved(ctx)
	if err != nil {
		return nil, err
	}

	var best *storage.FAQ
	var bestScore float64
	for _, faq := range faqs {
		var score float64
		for _, kw := range faq.Keywords {
			if strings.Contains(normalized, nlp.Normalize(kw)) {
				score++
			}
		}
		for _, word := range nlp.Words(nlp.Normalize(faq.Question)) {
			if len(word) > 3 && strings.Contains(normalized, word) {
				score += 0.5
			}
		}
		if score >= 1 && score > bestScore {
			bestScore = score
			best = faq
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := r.faqs.IncrementUsage(ctx, best.ID); err != nil {
		r.logger.Warn().Err(err).Str("faq_id", best.ID.String()).Msg("Failed to bump FAQ usage")
	}

	res := &Result{
		Intent:     intent.ID(best.Category),
		Data:       best.Answer,
		Source:     storage.SourceFAQ,
		FAQID:      best.ID,
		Confidence: min(bestScore/2.0, 1.0),
	}
	if best.HumanizedAnswer != "" {
		res.Answer = best.HumanizedAnswer
	} else {
		res.NeedsHumanize = true
	}
	return res, nil
}

func (r *Resolver) matchCache(ctx context.Context, normalized string, intentID intent.ID) (*Result, error) {
	if intentID == intent.Desconocido {
		return nil, nil
	}
	entries, err := r.cache.ListValidByIntent(ctx, string(intentID))
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		entryNorm := nlp.Normalize(entry.NormalizedQuestion)
		if entryNorm != normalized && nlp.Jaccard(entryNorm, normalized) <= r.cacheSimilarity {
			continue
		}
		if err := r.cache.IncrementUsage(ctx, entry.ID); err != nil {
			r.logger.Warn().Err(err).Str("cache_id", entry.ID.String()).Msg("Failed to bump cache usage")
		}
		return &Result{
			Intent:     intentID,
			Data:       entry.ContextData,
			Answer:     entry.Answer,
			Source:     storage.SourceCache,
			Confidence: 0.9,
		}, nil
	}
	return nil, nil
}
