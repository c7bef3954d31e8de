package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtvpioli/assistant-engine/internal/cache"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

type fakeProvider struct {
	result *Result
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	return f.result, f.err
}

func (f *fakeProvider) TestConnection(ctx context.Context) error { return f.err }

type fakeUsageStore struct {
	entries []*storage.AIUsageLog
}

func (f *fakeUsageStore) Create(ctx context.Context, log *storage.AIUsageLog) error {
	f.entries = append(f.entries, log)
	return nil
}

func TestEstimateCost(t *testing.T) {
	tests := []struct {
		name         string
		tokensInput  int
		tokensOutput int
		expected     float64
	}{
		{
			name:         "zero tokens costs nothing",
			tokensInput:  0,
			tokensOutput: 0,
			expected:     0,
		},
		{
			name:         "one million input tokens",
			tokensInput:  1_000_000,
			tokensOutput: 0,
			expected:     0.075,
		},
		{
			name:         "output tokens cost more than input",
			tokensInput:  0,
			tokensOutput: 1_000_000,
			expected:     0.30,
		},
		{
			name:         "typical short call rounds to six decimals",
			tokensInput:  500,
			tokensOutput: 200,
			expected:     0.000098,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, EstimateCost(tt.tokensInput, tt.tokensOutput), 1e-9)
		})
	}
}

func TestRecordingProviderLogsSuccess(t *testing.T) {
	store := &fakeUsageStore{}
	inner := &fakeProvider{result: &Result{
		Text:         "hola",
		TokensInput:  120,
		TokensOutput: 40,
		LatencyMs:    85,
		Model:        "gemini-2.0-flash",
		Success:      true,
	}}
	provider := NewRecordingProvider(inner, store, observability.DefaultLogger())

	result, err := provider.Generate(context.Background(), Request{Prompt: "hola"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, "fake", entry.Provider)
	assert.Equal(t, "gemini-2.0-flash", entry.Model)
	assert.Equal(t, 120, entry.TokensInput)
	assert.Equal(t, 40, entry.TokensOutput)
	assert.True(t, entry.Success)
	assert.InDelta(t, EstimateCost(120, 40), entry.EstimatedCost, 1e-9)
}

func TestRecordingProviderBumpsDailyCounter(t *testing.T) {
	store := &fakeUsageStore{}
	counter := cache.NewMemoryClient(16)
	inner := &fakeProvider{result: &Result{Text: "hola", Success: true}}
	provider := NewRecordingProvider(inner, store, observability.DefaultLogger(),
		WithDailyCounter(counter))

	_, err := provider.Generate(context.Background(), Request{Prompt: "hola"})
	require.NoError(t, err)
	_, err = provider.Generate(context.Background(), Request{Prompt: "hola de nuevo"})
	require.NoError(t, err)

	n, err := counter.Count(context.Background(), cache.DailyAIKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestDailyUsagePrefersCounter(t *testing.T) {
	counter := cache.NewMemoryClient(16)
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	_, err := counter.Incr(context.Background(), cache.DailyAIKey(day), time.Hour)
	require.NoError(t, err)

	usage := NewDailyUsage(counter, &fakeDailyStore{count: 99}, observability.DefaultLogger())

	n, err := usage.CountSuccessfulSince(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDailyUsageFallsBackToStore(t *testing.T) {
	counter := cache.NewMemoryClient(16)
	usage := NewDailyUsage(counter, &fakeDailyStore{count: 7}, observability.DefaultLogger())

	n, err := usage.CountSuccessfulSince(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

type fakeDailyStore struct {
	count int64
}

func (f *fakeDailyStore) CountSuccessfulSince(context.Context, time.Time) (int64, error) {
	return f.count, nil
}

func TestRecordingProviderLogsFailure(t *testing.T) {
	store := &fakeUsageStore{}
	inner := &fakeProvider{
		result: &Result{Model: "gemini-2.0-flash", Error: "deadline exceeded"},
		err:    fmt.Errorf("deadline exceeded"),
	}
	provider := NewRecordingProvider(inner, store, observability.DefaultLogger())

	_, err := provider.Generate(context.Background(), Request{Prompt: "hola"})
	require.Error(t, err)

	require.Len(t, store.entries, 1)
	assert.False(t, store.entries[0].Success)
	assert.Equal(t, "deadline exceeded", store.entries[0].ErrorMessage)
}
