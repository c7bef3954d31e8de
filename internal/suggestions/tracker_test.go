package suggestions

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/ai"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type fakeStore struct {
	suggestions []*storage.Suggestion
}

func (s *fakeStore) ListOpen(context.Context) ([]*storage.Suggestion, error) {
	return s.suggestions, nil
}

func (s *fakeStore) Create(_ context.Context, sug *storage.Suggestion) error {
	s.suggestions = append(s.suggestions, sug)
	return nil
}

func (s *fakeStore) IncrementDetection(_ context.Context, id uuid.UUID, example, sessionKey string) error {
	for _, sug := range s.suggestions {
		if sug.ID == id {
			sug.TimesDetected++
			sug.LastExample = example
			sug.LastSessionKey = sessionKey
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakeProvider struct {
	text  string
	err   error
	calls int
}

func (p *fakeProvider) Generate(context.Context, ai.Request) (*ai.Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ai.Result{Text: p.text, Success: true}, nil
}

func (p *fakeProvider) TestConnection(context.Context) error { return nil }
func (p *fakeProvider) Name() string                         { return "fake" }

func newTracker(store *fakeStore, provider ai.Provider) *Tracker {
	return NewTracker(store, provider, 0.6, observability.DefaultLogger())
}

func TestTrackSimilarQueriesBumpOneSuggestion(t *testing.T) {
	store := &fakeStore{}
	tracker := newTracker(store, &fakeProvider{err: errors.New("down")})

	tracker.Track(context.Background(), "cuanto cuesta la vtv para camiones", "sess-1")
	tracker.Track(context.Background(), "cuanto sale la vtv para camiones", "sess-2")

	require.Len(t, store.suggestions, 1)
	sug := store.suggestions[0]
	assert.Equal(t, 2, sug.TimesDetected)
	assert.Equal(t, "cuanto sale la vtv para camiones", sug.LastExample)
	assert.Equal(t, "sess-2", sug.LastSessionKey)
	assert.Equal(t, storage.SuggestionNueva, sug.State)
}

func TestTrackDistinctQueriesCreateSeparateSuggestions(t *testing.T) {
	store := &fakeStore{}
	tracker := newTracker(store, &fakeProvider{err: errors.New("down")})

	tracker.Track(context.Background(), "cuanto cuesta la vtv para camiones", "sess-1")
	tracker.Track(context.Background(), "hacen inspecciones a domicilio", "sess-1")

	assert.Len(t, store.suggestions, 2)
}

func TestTrackAppliesSpellingCorrection(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{text: "¿Hacen inspecciones los feriados?"}
	tracker := newTracker(store, provider)

	tracker.Track(context.Background(), "asen inspexiones los feriados", "sess-1")

	require.Len(t, store.suggestions, 1)
	assert.Equal(t, "¿Hacen inspecciones los feriados?", store.suggestions[0].Topic)
	assert.Equal(t, "asen inspexiones los feriados", store.suggestions[0].LastExample)
	assert.Equal(t, 1, provider.calls)
}

func TestTrackKeepsOriginalWhenCorrectionBalloons(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{
		text: "Claro, acá está el texto corregido con una larga explicación innecesaria " +
			"de cada cambio realizado sobre la consulta original del cliente que ya no es el texto pedido",
	}
	tracker := newTracker(store, provider)

	tracker.Track(context.Background(), "orario de atencion", "sess-1")

	require.Len(t, store.suggestions, 1)
	assert.Equal(t, "orario de atencion", store.suggestions[0].Topic)
}

func TestTrackIgnoresEmptyTopic(t *testing.T) {
	store := &fakeStore{}
	tracker := newTracker(store, &fakeProvider{})

	tracker.Track(context.Background(), "   ", "sess-1")

	assert.Empty(t, store.suggestions)
}
