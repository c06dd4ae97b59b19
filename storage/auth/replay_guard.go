package auth

import (
	"sync"
	"time"
)

// ReplayGuard remembers envelope digests for a window so an identical
// signed invocation cannot be submitted twice within it.
type ReplayGuard struct {
	mu     sync.Mutex
	ttl    time.Duration
	seen   map[[32]byte]time.Time
	now    func() time.Time
	sweeps int
}

// NewReplayGuard builds a guard with the given window.
func NewReplayGuard(ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{ttl: ttl, seen: make(map[[32]byte]time.Time), now: time.Now}
}

// Check records digest and reports whether it was fresh.
func (g *ReplayGuard) Check(digest [32]byte) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if exp, ok := g.seen[digest]; ok && now.Before(exp) {
		return false
	}
	g.seen[digest] = now.Add(g.ttl)
	g.sweeps++
	if g.sweeps >= 256 {
		g.sweeps = 0
		for d, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, d)
			}
		}
	}
	return true
}

// Len reports how many digests are currently remembered.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Forget releases digest, used when the invocation it guarded failed.
func (g *ReplayGuard) Forget(digest [32]byte) {
	g.mu.Lock()
	delete(g.seen, digest)
	g.mu.Unlock()
}
