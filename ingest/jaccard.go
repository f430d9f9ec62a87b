package ingest

import "strings"

// jaccardWordSimilarity computes the Jaccard similarity of two strings'
// word sets: |A ∩ B| / |A ∪ B|. Used by both prompt-mutation flag
// detection and caching-opportunity detection so both compare payloads
// the same way (spec §4.10.1/4.10.2 both specify "Jaccard word
// similarity" without a second definition).
func jaccardWordSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for word := range setA {
		if setB[word] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
