package vision

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when the ring was constructed without any API keys.
var ErrNoKeys = errors.New("no vision api keys configured")

// KeyRing hands out API keys round-robin so quota exhaustion on one key can
// be sidestepped by rotating to the next. Safe for concurrent use.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewKeyRing builds a ring over the given keys, dropping empties.
func NewKeyRing(keys []string) *KeyRing {
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			filtered = append(filtered, k)
		}
	}
	return &KeyRing{keys: filtered}
}

// Len reports how many keys the ring holds.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Current returns the active key.
func (r *KeyRing) Current() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoKeys
	}
	return r.keys[r.idx], nil
}

// Rotate advances to the next key and returns it. With a single key it is a
// no-op that returns the same key.
func (r *KeyRing) Rotate() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoKeys
	}
	r.idx = (r.idx + 1) % len(r.keys)
	return r.keys[r.idx], nil
}
