package generate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyRingDropsBlanks(t *testing.T) {
	ring := NewKeyRing([]string{"", "  ", "k1", "k2", ""})
	assert.Equal(t, 2, ring.Len())
	assert.Equal(t, "k1", ring.Current())
}

func TestKeyRingRotationWrapsAround(t *testing.T) {
	ring := NewKeyRing([]string{"k1", "k2", "k3"})
	assert.Equal(t, "k2", ring.Rotate())
	assert.Equal(t, "k3", ring.Rotate())
	assert.Equal(t, "k1", ring.Rotate())
	assert.Equal(t, "k1", ring.Current())
}

func TestKeyRingEmpty(t *testing.T) {
	ring := NewKeyRing(nil)
	assert.Zero(t, ring.Len())
	assert.Equal(t, "", ring.Current())
	assert.Equal(t, "", ring.Rotate())
}

func TestLooksLikeCreditsError(t *testing.T) {
	assert.True(t, looksLikeCreditsError(`{"error":"You have exceeded your monthly included credits"}`))
	assert.True(t, looksLikeCreditsError("Payment Required"))
	assert.False(t, looksLikeCreditsError("model is loading"))
}
