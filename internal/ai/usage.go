package ai

import (
	"context"
	"time"

	"github.com/rtvpioli/assistant-engine/internal/cache"
	"github.com/rtvpioli/assistant-engine/internal/observability"
)

// DailyCountStore is the usage-log fallback for the daily call count.
type DailyCountStore interface {
	CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error)
}

// DailyUsage answers "how many successful calls today" from the atomic cache
// counter, falling back to the usage log when the counter is cold (fresh
// process with a memory cache, or Redis unavailable).
type DailyUsage struct {
	counter cache.Counter
	store   DailyCountStore
	logger  *observability.Logger
}

func NewDailyUsage(counter cache.Counter, store DailyCountStore, logger *observability.Logger) *DailyUsage {
	return &DailyUsage{counter: counter, store: store, logger: logger}
}

// CountSuccessfulSince returns the successful-call count for the day that
// contains since. The counter is day-keyed, so the sub-day precision of
// since only matters for the fallback query.
func (d *DailyUsage) CountSuccessfulSince(ctx context.Context, since time.Time) (int64, error) {
	if d.counter != nil {
		n, err := d.counter.Count(ctx, cache.DailyAIKey(since))
		if err != nil {
			d.logger.Warn().Err(err).Msg("Daily AI counter unavailable, falling back to usage log")
		} else if n > 0 {
			return n, nil
		}
	}
	return d.store.CountSuccessfulSince(ctx, since)
}
