// Package textutil holds the text normalization, hashing, similarity and
// length rules shared by the generator chain and the dedup guard.
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	bracketedRe  = regexp.MustCompile(`\[[^\]\n]*\]`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9\s]`)
	cleanEndRe   = regexp.MustCompile(`[.!?)\]"']$`)
)

// NormalizeForHash lowercases, collapses internal whitespace and trims so
// near-identical texts collide.
func NormalizeForHash(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(strings.ToLower(text), " "))
}

// Hash returns the hex SHA-256 digest of the normalized text.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeForHash(text)))
	return hex.EncodeToString(sum[:])
}

// Tokens splits text into its lowercase alphanumeric word set.
func Tokens(text string) map[string]struct{} {
	cleaned := nonAlnumRe.ReplaceAllString(strings.ToLower(text), " ")
	set := make(map[string]struct{})
	for _, w := range strings.Fields(cleaned) {
		set[w] = struct{}{}
	}
	return set
}

// Jaccard returns the token-set similarity of two texts in [0,1]. Two empty
// texts are considered identical.
func Jaccard(a, b string) float64 {
	setA, setB := Tokens(a), Tokens(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// CleanGenerated strips wrapping quotes and bracketed meta-instructions that
// backends sometimes emit, collapses runs of blank lines and trims.
func CleanGenerated(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 {
		if (strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`)) ||
			(strings.HasPrefix(text, "'") && strings.HasSuffix(text, "'")) {
			text = strings.TrimSpace(text[1 : len(text)-1])
		}
	}
	text = bracketedRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Platform length limits, in runes.
const (
	maxPostLen   = 280
	softCleanLen = 250
	truncateAt   = 277
	minBreakAt   = 150
)

// EnforceLength applies the platform cap. Overlong text, or long text that
// ends mid-sentence, is cut at the last sentence mark inside the first 277
// runes when that mark sits past offset 150; otherwise overlong text is
// hard-truncated to 277 runes plus an ellipsis marker.
func EnforceLength(text string) string {
	runes := []rune(text)
	endsClean := cleanEndRe.MatchString(strings.TrimSpace(text))
	if len(runes) <= maxPostLen && (endsClean || len(runes) <= softCleanLen) {
		return text
	}

	truncated := runes
	if len(truncated) > truncateAt {
		truncated = truncated[:truncateAt]
	}
	lastPunct := -1
	for i, r := range truncated {
		if r == '.' || r == '!' || r == '?' {
			lastPunct = i
		}
	}
	if lastPunct > minBreakAt {
		return string(truncated[:lastPunct+1])
	}
	if len(runes) > maxPostLen {
		return string(truncated) + "..."
	}
	return text
}
