package bets

import (
	"sync"
	"time"
)

// NONCE_WINDOW is how long a client bet nonce is remembered. A nonce seen
// again inside the window is a replayed request, not a new bet.
const NONCE_WINDOW = 2 * time.Minute

type nonceRegistry struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newNonceRegistry() *nonceRegistry {
	return &nonceRegistry{seen: make(map[string]time.Time)}
}

// register records the nonce and reports whether it was fresh. It prunes
// expired entries in passing, so the map stays bounded by the replay window.
func (r *nonceRegistry) register(nonce string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if at, ok := r.seen[nonce]; ok && now.Sub(at) < NONCE_WINDOW {
		return false
	}

	for n, at := range r.seen {
		if now.Sub(at) >= NONCE_WINDOW {
			delete(r.seen, n)
		}
	}

	r.seen[nonce] = now
	return true
}

// release forgets a nonce whose placement failed after registration, so the
// client can retry the same request.
func (r *nonceRegistry) release(nonce string) {
	if nonce == "" {
		return
	}
	r.mu.Lock()
	delete(r.seen, nonce)
	r.mu.Unlock()
}
