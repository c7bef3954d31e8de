package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/cache"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

// defaultFAQListTTL bounds staleness when no TTL is configured.
const defaultFAQListTTL = 5 * time.Minute

var faqListKey = cache.CacheKey("faq", "approved")

// CachedFAQStore keeps the approved-FAQ list in the byte cache between
// messages, so a busy widget does not re-read the full table on every turn.
// Any cache failure falls through to the wrapped store.
type CachedFAQStore struct {
	inner  FAQStore
	cache  cache.Client
	ttl    time.Duration
	logger *observability.Logger
}

// NewCachedFAQStore wraps a FAQStore with a byte cache.
func NewCachedFAQStore(inner FAQStore, client cache.Client, ttl time.Duration,
	logger *observability.Logger) *CachedFAQStore {
	if ttl <= 0 {
		ttl = defaultFAQListTTL
	}
	return &CachedFAQStore{
		inner:  inner,
		cache:  client,
		ttl:    ttl,
		logger: logger,
	}
}

// ListApproved returns the cached list when present, reloading and re-caching
// it on a miss.
func (s *CachedFAQStore) ListApproved(ctx context.Context) ([]*storage.FAQ, error) {
	if raw, err := s.cache.Get(ctx, faqListKey); err == nil {
		var faqs []*storage.FAQ
		if err := json.Unmarshal(raw, &faqs); err == nil {
			return faqs, nil
		}
		s.logger.Warn().Err(err).Msg("Discarding undecodable cached FAQ list")
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn().Err(err).Msg("FAQ cache read failed")
	}

	faqs, err := s.inner.ListApproved(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(faqs); err == nil {
		if err := s.cache.Set(ctx, faqListKey, data, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("FAQ cache write failed")
		}
	}
	return faqs, nil
}

// IncrementUsage goes straight to the wrapped store. Usage counts inside the
// cached list refresh when the entry expires.
func (s *CachedFAQStore) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	return s.inner.IncrementUsage(ctx, id)
}

// Invalidate drops the cached list so a newly approved entry starts answering
// without waiting out the TTL.
func (s *CachedFAQStore) Invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, faqListKey); err != nil {
		s.logger.Warn().Err(err).Msg("FAQ cache invalidation failed")
	}
}
