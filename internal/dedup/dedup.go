// Package dedup prevents republication of content equivalent to recent
// output, using a bounded history of normalized content hashes.
package dedup

import (
	"context"
	"errors"

	"autopost/internal/domain"
	"autopost/internal/textutil"
)

// ErrDuplicateContent means the single regeneration attempt also collided
// with the stored hash history.
var ErrDuplicateContent = errors.New("duplicate content detected")

// Hash is the stable digest used for dedupe comparisons.
func Hash(text string) string { return textutil.Hash(text) }

// Seen reports whether hash is already in the history.
func Seen(history []string, hash string) bool {
	for _, h := range history {
		if h == hash {
			return true
		}
	}
	return false
}

// Push prepends hash and truncates the history to its capacity.
func Push(history []string, hash string) []string {
	updated := append([]string{hash}, history...)
	if len(updated) > domain.DedupeHistorySize {
		updated = updated[:domain.DedupeHistorySize]
	}
	return updated
}

// Ensure checks text against the history. On collision it calls regenerate
// exactly once and re-checks; a second collision returns ErrDuplicateContent.
// It returns the accepted text and its hash.
func Ensure(ctx context.Context, history []string, text string, regenerate func(context.Context) (string, error)) (string, string, error) {
	hash := Hash(text)
	if !Seen(history, hash) {
		return text, hash, nil
	}
	retry, err := regenerate(ctx)
	if err != nil {
		return "", "", err
	}
	retryHash := Hash(retry)
	if Seen(history, retryHash) {
		return "", "", ErrDuplicateContent
	}
	return retry, retryHash, nil
}
