// Package dedup collapses semantically duplicate stories created
// independently on different nodes. The merge is a pure function of
// already-replicated rows, so every node computes the same outcome
// without extra coordination.
package dedup

import (
	"strings"
	"unicode"
)

// Similarity scores two stories by Jaccard similarity over the combined
// word sets of their titles and descriptions, in [0, 1]. The contract is
// determinism of the outcome, not "true" duplicate detection accuracy.
func Similarity(titleA, descA, titleB, descB string) float64 {
	a := tokenize(titleA, descA)
	b := tokenize(titleB, descB)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

func tokenize(texts ...string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, text := range texts {
		fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, word := range fields {
			words[word] = struct{}{}
		}
	}
	return words
}
