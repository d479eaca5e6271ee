package dedup

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopost/internal/domain"
)

func TestSeen(t *testing.T) {
	h := Hash("hello world")
	assert.True(t, Seen([]string{"x", h}, h))
	assert.False(t, Seen([]string{"x"}, h))
	assert.False(t, Seen(nil, h))
}

func TestPushBoundsHistory(t *testing.T) {
	var history []string
	for i := 0; i < domain.DedupeHistorySize+10; i++ {
		history = Push(history, fmt.Sprintf("h%d", i))
	}
	assert.Len(t, history, domain.DedupeHistorySize)
	// Newest first.
	assert.Equal(t, fmt.Sprintf("h%d", domain.DedupeHistorySize+9), history[0])
}

func TestEnsureNoCollisionSkipsRegeneration(t *testing.T) {
	calls := 0
	text, hash, err := Ensure(context.Background(), []string{Hash("other")}, "fresh text", func(context.Context) (string, error) {
		calls++
		return "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh text", text)
	assert.Equal(t, Hash("fresh text"), hash)
	assert.Zero(t, calls)
}

func TestEnsureRegeneratesOnceThenAccepts(t *testing.T) {
	calls := 0
	history := []string{Hash("dupe")}
	text, hash, err := Ensure(context.Background(), history, "dupe", func(context.Context) (string, error) {
		calls++
		return "something else", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "something else", text)
	assert.Equal(t, Hash("something else"), hash)
	assert.Equal(t, 1, calls)
}

func TestEnsureSecondCollisionFails(t *testing.T) {
	calls := 0
	history := []string{Hash("dupe")}
	_, _, err := Ensure(context.Background(), history, "dupe", func(context.Context) (string, error) {
		calls++
		return "DUPE", nil // normalizes to the same hash
	})
	assert.ErrorIs(t, err, ErrDuplicateContent)
	assert.Equal(t, 1, calls)
}

func TestEnsurePropagatesRegenerationError(t *testing.T) {
	boom := errors.New("backend down")
	history := []string{Hash("dupe")}
	_, _, err := Ensure(context.Background(), history, "dupe", func(context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
}
