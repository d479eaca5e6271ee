package generate

import (
	"strings"
	"sync"
)

// KeyRing is the rotation state for a pool of API keys. It is constructed
// once and owned by the backend that uses it; rotation survives across calls
// but never lives in a global.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing builds a ring from the non-blank entries of keys.
func NewKeyRing(keys []string) *KeyRing {
	r := &KeyRing{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.keys = append(r.keys, k)
		}
	}
	return r
}

func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Current returns the active key, or "" when the ring is empty.
func (r *KeyRing) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	return r.keys[r.idx]
}

// Rotate advances to the next key and returns it.
func (r *KeyRing) Rotate() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return ""
	}
	r.idx = (r.idx + 1) % len(r.keys)
	return r.keys[r.idx]
}
