// Package topic rotates among a schedule's candidate topics, biasing toward
// the ones least present in recent output.
package topic

import (
	"math/rand"
	"strings"
)

// Parse splits a comma-separated topic field into an ordered candidate list.
// Entries are trimmed and empties dropped; repeats stay independent entries.
func Parse(field string) []string {
	var topics []string
	for _, part := range strings.Split(field, ",") {
		if t := strings.TrimSpace(part); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// Pick counts case-insensitive substring occurrences of each candidate in
// recentTexts and selects uniformly at random among the candidates tied for
// the minimum count. Empty candidate list returns "".
func Pick(topics []string, recentTexts []string, rng *rand.Rand) string {
	if len(topics) == 0 {
		return ""
	}
	lowerTexts := make([]string, len(recentTexts))
	for i, t := range recentTexts {
		lowerTexts[i] = strings.ToLower(t)
	}

	counts := make([]int, len(topics))
	minCount := -1
	for i, t := range topics {
		tl := strings.ToLower(t)
		for _, rt := range lowerTexts {
			if strings.Contains(rt, tl) {
				counts[i]++
			}
		}
		if minCount < 0 || counts[i] < minCount {
			minCount = counts[i]
		}
	}

	var candidates []string
	for i, t := range topics {
		if counts[i] == minCount {
			candidates = append(candidates, t)
		}
	}
	return candidates[rng.Intn(len(candidates))]
}
