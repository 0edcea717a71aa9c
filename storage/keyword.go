package storage

import "strings"

// KeywordScore returns the fraction of terms that occur in content.
// Terms are expected lowercased.
func KeywordScore(content string, terms []string) float32 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float32(hits) / float32(len(terms))
}
