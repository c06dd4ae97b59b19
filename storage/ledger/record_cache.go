package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"bountypool-backend/core/bounty"
)

// RecordCache keeps recently read slot contents for query paths. Writers
// invalidate a handle after every committed invocation that touches it.
// Each invalidation bumps the handle's generation; a read that started
// under an older generation is not cached.
type RecordCache struct {
	c   *ristretto.Cache[string, bounty.Slot]
	ttl time.Duration

	mu  sync.Mutex
	gen map[bounty.Identity]uint64
}

// NewRecordCache sizes the cache by total cached bytes.
func NewRecordCache(maxCostBytes int64, ttl time.Duration) (*RecordCache, error) {
	counters := maxCostBytes / 100 * 10
	if counters < 1000 {
		counters = 1000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, bounty.Slot]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RecordCache{c: c, ttl: ttl, gen: make(map[bounty.Identity]uint64)}, nil
}

// Get returns a copy of a cached slot.
func (c *RecordCache) Get(handle bounty.Identity) (bounty.Slot, bool) {
	slot, ok := c.c.Get(handle.String())
	if !ok {
		return bounty.Slot{}, false
	}
	return copySlot(slot), true
}

// Generation returns the invalidation count for handle. Take it before
// reading the backing ledger and pass it to SetIfCurrent.
func (c *RecordCache) Generation(handle bounty.Identity) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[handle]
}

// Set caches slot under handle. Admission is asynchronous.
func (c *RecordCache) Set(handle bounty.Identity, slot bounty.Slot) {
	c.c.SetWithTTL(handle.String(), slot, int64(len(slot.Data))+bounty.IdentitySize, c.ttl)
}

// SetIfCurrent caches slot only if handle was not invalidated since gen was
// taken. It reports whether the slot was offered to the cache.
func (c *RecordCache) SetIfCurrent(handle bounty.Identity, slot bounty.Slot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[handle] != gen {
		return false
	}
	c.Set(handle, slot)
	return true
}

// Invalidate drops handle and bumps its generation. Ristretto applies the
// delete after any set queued before it, so ordering under mu is enough.
func (c *RecordCache) Invalidate(handle bounty.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen[handle]++
	c.c.Del(handle.String())
}

// Wait blocks until pending sets are applied.
func (c *RecordCache) Wait() { c.c.Wait() }

// Close shuts down the cache.
func (c *RecordCache) Close() { c.c.Close() }

// CachedLedger wraps a Ledger so Slot reads go through a RecordCache.
type CachedLedger struct {
	Ledger
	cache *RecordCache
}

// WithCache returns l with cached slot reads. A nil cache returns l unchanged.
func WithCache(l Ledger, cache *RecordCache) Ledger {
	if cache == nil {
		return l
	}
	return &CachedLedger{Ledger: l, cache: cache}
}

// Slot serves from cache, falling back to the wrapped ledger.
func (l *CachedLedger) Slot(ctx context.Context, handle bounty.Identity) (bounty.Slot, error) {
	if slot, ok := l.cache.Get(handle); ok {
		return slot, nil
	}
	gen := l.cache.Generation(handle)
	slot, err := l.Ledger.Slot(ctx, handle)
	if err != nil {
		return slot, err
	}
	l.cache.SetIfCurrent(handle, slot, gen)
	return slot, nil
}

// Invoke runs fn on the wrapped ledger and drops every handle it saved.
// Invalidation only reaches this process; other writers sharing the backing
// store are not seen, which is why postgres runs uncached by default.
func (l *CachedLedger) Invoke(ctx context.Context, fn func(bounty.Env) error) error {
	var touched []bounty.Identity
	err := l.Ledger.Invoke(ctx, func(env bounty.Env) error {
		return fn(trackingEnv{Env: env, touched: &touched})
	})
	for _, h := range touched {
		l.cache.Invalidate(h)
	}
	return err
}

// Close closes the cache and the wrapped ledger.
func (l *CachedLedger) Close() {
	l.cache.Close()
	l.Ledger.Close()
}

type trackingEnv struct {
	bounty.Env
	touched *[]bounty.Identity
}

func (e trackingEnv) Records() bounty.RecordStore {
	return trackingStore{RecordStore: e.Env.Records(), touched: e.touched}
}

type trackingStore struct {
	bounty.RecordStore
	touched *[]bounty.Identity
}

func (s trackingStore) Save(ctx context.Context, handle bounty.Identity, data []byte) error {
	*s.touched = append(*s.touched, handle)
	return s.RecordStore.Save(ctx, handle, data)
}
