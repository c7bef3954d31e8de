package knowledge

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/rtvpioli/assistant-engine/internal/nlp"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

const (
	// minScore is the relevance floor a document must reach to be returned.
	minScore = 2
	// maxResults limits how many documents back one answer.
	maxResults = 3
	// fragmentBudget caps the extracted fragment length in characters.
	fragmentBudget = 800
)

// DocumentStore is the persistence surface the searcher needs.
type DocumentStore interface {
	ListActive(ctx context.Context) ([]*storage.KnowledgeDocument, error)
	IncrementUsage(ctx context.Context, ids []uuid.UUID) error
}

// Result is one relevant document with its extracted fragment.
type Result struct {
	DocID    uuid.UUID
	Title    string
	Fragment string
	Score    int
}

// Searcher scores knowledge documents against client questions.
type Searcher struct {
	store  DocumentStore
	logger *observability.Logger
}

// NewSearcher creates a knowledge-base searcher.
func NewSearcher(store DocumentStore, logger *observability.Logger) *Searcher {
	return &Searcher{store: store, logger: logger}
}

// Search returns up to three relevant documents for the query, each with the
// most relevant fragment extracted. Usage counters are updated in one batch
// after scoring, never during the scan.
func (s *Searcher) Search(ctx context.Context, query string) ([]Result, error) {
	docs, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	var results []Result
	for _, doc := range docs {
		score := scoreDocument(doc, queryWords)
		if score < minScore {
			continue
		}
		fragment := ExtractFragment(doc.Content, queryWords)
		if fragment == "" {
			continue
		}
		results = append(results, Result{
			DocID:    doc.ID,
			Title:    doc.Title,
			Fragment: fragment,
			Score:    score,
		})
	}

	// Stable sort keeps the earliest document first on ties.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	if len(results) > 0 {
		ids := make([]uuid.UUID, len(results))
		for i, r := range results {
			ids[i] = r.DocID
		}
		if err := s.store.IncrementUsage(ctx, ids); err != nil {
			s.logger.Warn().Err(err).Msg("update kb usage counters")
		}
	}

	s.logger.Debug().
		Int("documents", len(docs)).
		Int("results", len(results)).
		Strs("query_words", queryWords).
		Msg("kb search")

	return results, nil
}

// scoreDocument weighs keyword, title and full-text hits.
func scoreDocument(doc *storage.KnowledgeDocument, queryWords []string) int {
	score := 0

	keywords := make([]string, 0, len(doc.Keywords))
	for _, kw := range doc.Keywords {
		keywords = append(keywords, nlp.Normalize(kw))
	}
	for _, w := range queryWords {
		for _, kw := range keywords {
			if strings.Contains(kw, w) || strings.Contains(w, kw) {
				score += 2
				break
			}
		}
	}

	titleNorm := nlp.Normalize(doc.Title)
	for _, w := range queryWords {
		if strings.Contains(titleNorm, w) {
			score += 2
		}
	}

	contentNorm := nlp.Normalize(doc.Content)
	for _, w := range queryWords {
		if strings.Contains(contentNorm, w) {
			score++
		}
	}

	return score
}

// ExtractFragment pulls the paragraphs most relevant to the query, up to the
// fragment budget. When no paragraph matches, the first paragraph is used.
func ExtractFragment(content string, queryWords []string) string {
	if content == "" {
		return ""
	}

	paragraphs := splitParagraphs(content)
	if len(paragraphs) == 0 {
		return nlp.Truncate(content, fragmentBudget)
	}

	type scored struct {
		score int
		text  string
	}
	var best []scored
	for _, p := range paragraphs {
		pNorm := nlp.Normalize(p)
		score := 0
		for _, w := range queryWords {
			score += strings.Count(pNorm, w)
		}
		if score > 0 {
			best = append(best, scored{score: score, text: p})
		}
	}

	if len(best) == 0 {
		return nlp.Truncate(paragraphs[0], fragmentBudget)
	}

	sort.SliceStable(best, func(i, j int) bool {
		return best[i].score > best[j].score
	})

	var b strings.Builder
	for _, s := range best {
		if b.Len()+len(s.text)+2 <= fragmentBudget {
			b.WriteString(s.text)
			b.WriteString("\n\n")
			continue
		}
		if room := fragmentBudget - b.Len(); room > 50 {
			b.WriteString(nlp.TruncateBytes(s.text, room))
			b.WriteString("...")
		}
		break
	}
	return strings.TrimSpace(b.String())
}

// splitParagraphs breaks content on blank lines and newlines, dropping
// fragments too short to be useful.
func splitParagraphs(content string) []string {
	var out []string
	for _, chunk := range strings.Split(content, "\n") {
		p := strings.TrimSpace(chunk)
		if len(p) > 20 {
			out = append(out, p)
		}
	}
	return out
}
