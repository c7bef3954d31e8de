// Package knowledge implements knowledge-base keyword generation and search.
package knowledge

import (
	"sort"

	"github.com/rtvpioli/assistant-engine/internal/nlp"
)

const (
	maxKeywords    = 50
	maxBigrams     = 15
	minKeywords    = 10
	minWordLen     = 3 // words shorter than this are dropped
	minOccurrences = 2
)

// GenerateKeywords derives search keywords from a document's title and body.
// Frequent bigrams come first, then frequent unigrams; short documents are
// backfilled with every unique word up to the cap.
func GenerateKeywords(title, content string) []string {
	words := contentWords(title + " " + content)
	if len(words) == 0 {
		return nil
	}

	uniCount := make(map[string]int)
	for _, w := range words {
		uniCount[w]++
	}

	biCount := make(map[string]int)
	var biOrder []string
	for i := 0; i+1 < len(words); i++ {
		bg := words[i] + " " + words[i+1]
		if biCount[bg] == 0 {
			biOrder = append(biOrder, bg)
		}
		biCount[bg]++
	}

	var keywords []string
	seen := make(map[string]struct{})
	add := func(kw string) {
		if _, ok := seen[kw]; ok {
			return
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}

	// Bigrams are the most informative; take the most frequent first.
	sort.SliceStable(biOrder, func(i, j int) bool {
		return biCount[biOrder[i]] > biCount[biOrder[j]]
	})
	taken := 0
	for _, bg := range biOrder {
		if taken >= maxBigrams {
			break
		}
		if biCount[bg] >= minOccurrences {
			add(bg)
			taken++
		}
	}

	uniOrder := make([]string, 0, len(uniCount))
	for w := range uniCount {
		uniOrder = append(uniOrder, w)
	}
	sort.SliceStable(uniOrder, func(i, j int) bool {
		if uniCount[uniOrder[i]] != uniCount[uniOrder[j]] {
			return uniCount[uniOrder[i]] > uniCount[uniOrder[j]]
		}
		return uniOrder[i] < uniOrder[j]
	})
	for _, w := range uniOrder {
		if len(keywords) >= maxKeywords {
			break
		}
		if uniCount[w] >= minOccurrences {
			add(w)
		}
	}

	// Short documents rarely repeat words; backfill with unique words.
	if len(keywords) < minKeywords {
		for _, w := range words {
			if len(keywords) >= maxKeywords {
				break
			}
			add(w)
		}
	}

	return keywords
}

// contentWords normalizes text and drops stopwords and short tokens.
func contentWords(text string) []string {
	var out []string
	for _, w := range nlp.Words(text) {
		if IsStopword(w) || len([]rune(w)) <= minWordLen-1 {
			continue
		}
		out = append(out, w)
	}
	return out
}
