// Package suggestions records topics the assistant could not answer so the
// operations team can review them and grow the FAQ base.
package suggestions

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/ai"
	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

const (
	maxTopicLen   = 200
	maxExampleLen = 500
)

// Store is the suggestion persistence surface the tracker needs.
type Store interface {
	ListOpen(ctx context.Context) ([]*storage.Suggestion, error)
	Create(ctx context.Context, s *storage.Suggestion) error
	IncrementDetection(ctx context.Context, id uuid.UUID, example, sessionKey string) error
}

// Tracker deduplicates unresolved topics by word overlap before creating
// new suggestion records.
type Tracker struct {
	store    Store
	provider ai.Provider
	overlap  float64
	logger   *observability.Logger
}

// NewTracker builds a tracker. The provider is used only for best-effort
// spelling cleanup of new topics; pass a NoneProvider to skip it.
func NewTracker(s Store, provider ai.Provider, overlap float64, logger *observability.Logger) *Tracker {
	if overlap <= 0 {
		overlap = 0.6
	}
	return &Tracker{store: s, provider: provider, overlap: overlap, logger: logger}
}

// Track registers an unresolved topic. A topic whose word overlap with an
// open suggestion exceeds the threshold bumps that suggestion instead of
// creating a duplicate. Tracking is best effort and never fails the caller.
func (t *Tracker) Track(ctx context.Context, topic, sessionKey string) {
	normalized := nlp.Truncate(nlp.Normalize(topic), maxTopicLen)
	if normalized == "" {
		return
	}

	open, err := t.store.ListOpen(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to list open suggestions")
		return
	}

	example := nlp.Truncate(topic, maxExampleLen)
	for _, sug := range open {
		if nlp.Jaccard(sug.NormalizedTopic, normalized) > t.overlap {
			if err := t.store.IncrementDetection(ctx, sug.ID, example, sessionKey); err != nil {
				t.logger.Warn().Err(err).Str("suggestion_id", sug.ID.String()).
					Msg("Failed to bump suggestion detection count")
			}
			return
		}
	}

	cleaned := t.correctSpelling(ctx, topic)
	sug := &storage.Suggestion{
		ID:              uuid.New(),
		Topic:           nlp.Truncate(cleaned, maxTopicLen),
		NormalizedTopic: nlp.Truncate(nlp.Normalize(cleaned), maxTopicLen),
		State:           storage.SuggestionNueva,
		TimesDetected:   1,
		LastExample:     example,
		LastSessionKey:  sessionKey,
	}
	if err := t.store.Create(ctx, sug); err != nil {
		t.logger.Warn().Err(err).Msg("Failed to create suggestion")
		return
	}
	t.logger.Info().Str("topic", sug.Topic).Msg("New suggestion registered")
}

// correctSpelling asks the AI to clean up wording before the topic is shown
// to reviewers. The original text is kept when the call fails or the model
// pads the answer beyond three times the input length.
func (t *Tracker) correctSpelling(ctx context.Context, topic string) string {
	if t.provider == nil {
		return topic
	}

	prompt := "Corregí la ortografía y redacción del siguiente texto. " +
		"Devolvé SOLO el texto corregido, sin explicaciones ni comillas:\n\n" + topic

	res, err := t.provider.Generate(ctx, ai.Request{Prompt: prompt})
	if err != nil || !res.Success {
		t.logger.Debug().Msg("Spelling correction unavailable, keeping original topic")
		return topic
	}

	corrected := strings.Trim(strings.TrimSpace(res.Text), `"'`)
	if corrected == "" || len(corrected) >= len(topic)*3 {
		return topic
	}
	return corrected
}
