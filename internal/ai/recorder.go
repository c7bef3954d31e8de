package ai

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/cache"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// UsageStore persists one log row per provider call.
type UsageStore interface {
	Create(ctx context.Context, log *storage.AIUsageLog) error
}

// counterExpiry keeps yesterday's key around long enough for reporting.
const counterExpiry = 48 * time.Hour

// RecordingProvider decorates a Provider so every call, successful or not,
// leaves a usage log row behind. When a daily counter is attached, each
// successful call also bumps the day's atomic count.
type RecordingProvider struct {
	inner   Provider
	usage   UsageStore
	counter cache.Counter
	logger  *observability.Logger
	now     func() time.Time
}

// RecorderOption customizes a RecordingProvider.
type RecorderOption func(*RecordingProvider)

// WithDailyCounter attaches the atomic counter backing the daily call ceiling.
func WithDailyCounter(c cache.Counter) RecorderOption {
	return func(p *RecordingProvider) { p.counter = c }
}

func NewRecordingProvider(inner Provider, usage UsageStore, logger *observability.Logger, opts ...RecorderOption) *RecordingProvider {
	p := &RecordingProvider{inner: inner, usage: usage, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *RecordingProvider) Name() string { return p.inner.Name() }

func (p *RecordingProvider) TestConnection(ctx context.Context) error {
	return p.inner.TestConnection(ctx)
}

func (p *RecordingProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	result, err := p.inner.Generate(ctx, req)
	if result != nil {
		p.record(ctx, req, result)
	}
	return result, err
}

func (p *RecordingProvider) record(ctx context.Context, req Request, result *Result) {
	entry := &storage.AIUsageLog{
		Provider:      p.inner.Name(),
		Model:         result.Model,
		TokensInput:   result.TokensInput,
		TokensOutput:  result.TokensOutput,
		EstimatedCost: EstimateCost(result.TokensInput, result.TokensOutput),
		LatencyMs:     result.LatencyMs,
		Success:       result.Success,
		ErrorMessage:  result.Error,
	}
	if req.SessionID != "" {
		if id, err := uuid.Parse(req.SessionID); err == nil {
			entry.SessionID = id
		}
	}
	if err := p.usage.Create(ctx, entry); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to persist AI usage log entry")
	}

	if result.Success && p.counter != nil {
		if _, err := p.counter.Incr(ctx, cache.DailyAIKey(p.now()), counterExpiry); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to bump daily AI counter")
		}
	}
}
