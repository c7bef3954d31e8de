// Package nlp provides Spanish text normalization and similarity helpers
// shared by the classifier, resolver and knowledge search.
package nlp

import (
	"strings"
	"unicode/utf8"
)

var accentReplacer = strings.NewReplacer(
	"á", "a",
	"é", "e",
	"í", "i",
	"ó", "o",
	"ú", "u",
	"ü", "u",
	"ñ", "n",
)

const punctuation = "¿?¡!.,;:()[]{}\"'«»—–-"

// Normalize lowercases, strips Spanish accents, replaces punctuation with
// spaces and collapses whitespace. It is pure and idempotent: normalizing an
// already normalized string returns it unchanged.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = accentReplacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(punctuation, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Words returns the normalized words of s in order.
func Words(s string) []string {
	return strings.Fields(Normalize(s))
}

// WordSet returns the set of normalized words of s.
func WordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Words(s) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard returns the word-set overlap between two texts in [0, 1].
// Two empty texts overlap completely.
func Jaccard(a, b string) float64 {
	sa := WordSet(a)
	sb := WordSet(b)

	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	inter := 0
	for w := range sa {
		if _, ok := sb[w]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Ratio returns a similarity measure between two strings in [0, 1],
// computed as 2*M/T where M is the total length of the longest matching
// blocks and T the combined length of both strings.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ra := []rune(a)
	rb := []rune(b)
	matches := matchingRunes(ra, rb)
	return 2 * float64(matches) / float64(len(ra)+len(rb))
}

// matchingRunes sums the lengths of matching blocks by recursively splitting
// around the longest common contiguous run.
func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	bestA, bestB, bestLen := 0, 0, 0
	for i := range a {
		for j := range b {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > bestLen {
				bestA, bestB, bestLen = i, j, k
			}
		}
	}

	if bestLen == 0 {
		return 0
	}

	return bestLen +
		matchingRunes(a[:bestA], b[:bestB]) +
		matchingRunes(a[bestA+bestLen:], b[bestB+bestLen:])
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// TruncateBytes cuts s to at most max bytes without splitting a rune. The
// result stays valid UTF-8 when s is.
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
