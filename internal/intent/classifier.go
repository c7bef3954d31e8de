package intent

import (
	"strings"

	"github.com/rtvpioli/assistant-engine/internal/nlp"
)

// fuzzyThreshold is the minimum similarity ratio for a typo to count as a
// keyword hit. Words under minFuzzyLen characters never fuzzy-match.
const (
	fuzzyThreshold = 0.75
	minFuzzyLen    = 4
	fuzzyScore     = 0.7
)

// Match is a classification result.
type Match struct {
	Intent     ID
	Score      float64
	Confidence float64
}

// Classifier scores input text against the intent registry using exact,
// prefix, substring and fuzzy keyword matching.
type Classifier struct {
	defs []Definition
}

// NewClassifier builds a classifier over the full registry.
func NewClassifier() *Classifier {
	return &Classifier{defs: Registry()}
}

// Classify returns the best intent for the text with a confidence in [0, 1].
// The boolean is false when no keyword scored.
func (c *Classifier) Classify(text string) (Match, bool) {
	return c.classify(text, false)
}

// ClassifyData restricts classification to data-backed intents. Used for
// compound messages that open with a greeting but carry a real question.
func (c *Classifier) ClassifyData(text string) (Match, bool) {
	return c.classify(text, true)
}

func (c *Classifier) classify(text string, dataOnly bool) (Match, bool) {
	normalized := nlp.Normalize(text)
	words := nlp.WordSet(normalized)

	best := Match{Intent: Desconocido}
	for _, def := range c.defs {
		if dataOnly && def.Kind != KindData {
			continue
		}

		score := scoreIntent(def, normalized, words)
		if score > best.Score {
			best = Match{Intent: def.ID, Score: score}
		}
	}

	if best.Score <= 0 {
		return Match{Intent: Desconocido}, false
	}

	best.Confidence = min(best.Score/3, 1)
	return best, true
}

// scoreIntent accumulates keyword scores for one definition. A negative
// keyword hit, exact or fuzzy, zeroes the whole score.
func scoreIntent(def Definition, normalized string, words map[string]struct{}) float64 {
	score := 0.0
	for _, keyword := range def.Keywords {
		kw := nlp.Normalize(keyword)
		if kw == "" {
			continue
		}

		if strings.Contains(kw, " ") {
			score += scoreMultiWord(kw, normalized, words)
		} else if len([]rune(kw)) <= 3 {
			score += scoreShortWord(kw, normalized, words)
		} else {
			score += scoreLongWord(kw, normalized, words)
		}
	}

	if score > 0 {
		for _, neg := range def.NegativeKeywords {
			negNorm := nlp.Normalize(neg)
			if _, ok := words[negNorm]; ok {
				return 0
			}
			if strings.Contains(normalized, negNorm) {
				return 0
			}
			if fuzzyKeywordScore(negNorm, words) > 0 {
				return 0
			}
		}
	}

	return score
}

// scoreMultiWord handles phrase keywords: containment tiers, then the
// all-words check, then fuzzy.
func scoreMultiWord(kw, normalized string, words map[string]struct{}) float64 {
	if strings.Contains(normalized, kw) {
		switch {
		case normalized == kw:
			return 3
		case strings.HasPrefix(normalized, kw):
			return 2
		default:
			return 1
		}
	}

	all := true
	for _, w := range strings.Fields(kw) {
		if _, ok := words[w]; !ok {
			all = false
			break
		}
	}
	if all {
		return 1.5
	}

	return fuzzyKeywordScore(kw, words)
}

// scoreShortWord handles keywords of up to 3 characters. Only exact word-set
// membership counts, so "hi" never matches inside "chiste".
func scoreShortWord(kw, normalized string, words map[string]struct{}) float64 {
	if _, ok := words[kw]; !ok {
		return 0
	}
	switch {
	case normalized == kw:
		return 3
	case len(words) <= 2:
		return 2
	default:
		return 1
	}
}

// scoreLongWord handles single keywords of 4+ characters: substring tiers,
// then fuzzy.
func scoreLongWord(kw, normalized string, words map[string]struct{}) float64 {
	if strings.Contains(normalized, kw) {
		switch {
		case normalized == kw:
			return 3
		case strings.HasPrefix(normalized, kw):
			return 2
		default:
			return 1
		}
	}
	return fuzzyKeywordScore(kw, words)
}

// fuzzyKeywordScore checks whether a keyword, possibly multi-word, matches
// the input with typo tolerance. Multi-word keywords require every word to
// fuzzy-match some input word.
func fuzzyKeywordScore(kw string, words map[string]struct{}) float64 {
	kwWords := strings.Fields(kw)

	if len(kwWords) == 1 {
		for w := range words {
			if fuzzyWordMatch(w, kwWords[0]) {
				return fuzzyScore
			}
		}
		return 0
	}

	for _, k := range kwWords {
		matched := false
		for w := range words {
			if fuzzyWordMatch(w, k) {
				matched = true
				break
			}
		}
		if !matched {
			return 0
		}
	}
	return fuzzyScore
}

// fuzzyWordMatch compares two words with typo tolerance. Equal words always
// match; otherwise both must be 4+ characters and clear the similarity
// threshold.
func fuzzyWordMatch(word, keyword string) bool {
	if word == keyword {
		return true
	}
	if len([]rune(word)) < minFuzzyLen || len([]rune(keyword)) < minFuzzyLen {
		return false
	}
	return nlp.Ratio(word, keyword) >= fuzzyThreshold
}
