// Package cache implements the bounded response cache used by the
// `cache` plugin. It is a strict LRU on both read and write, guarded by
// a single mutex rather than a lock-free sharded map: a sharded cache
// trades strict LRU ordering for concurrency, and this cache favors the
// simpler, observably-deterministic model instead.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/waitgroup"
)

// Config configures a Cache's bounds: size, min_ttl, max_ttl,
// negative_ttl.
type Config struct {
	Size        int
	MinTTL      time.Duration
	MaxTTL      time.Duration
	NegativeTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Size <= 0 {
		c.Size = 10000
	}
	if c.MinTTL <= 0 {
		c.MinTTL = DefaultMinTTL
	}
	if c.MaxTTL <= 0 {
		c.MaxTTL = DefaultMaxTTL
	}
	if c.NegativeTTL <= 0 {
		c.NegativeTTL = DefaultNegativeTTL
	}
	return c
}

type entry struct {
	key     uint64
	msg     *dns.Msg
	storeAt time.Time
	ttl     time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storeAt) >= e.ttl
}

// Cache is a bounded, strictly-ordered LRU response cache keyed by
// cache.Key. It coalesces concurrent misses for the same key through an
// embedded waitgroup.WaitGroup: single-flight coalescing is not required
// for correctness here, but is cheap to provide as a non-observable
// optimization.
type Cache struct {
	mu   sync.Mutex
	cfg  Config
	ll   *list.List
	idx  map[uint64]*list.Element
	fill *waitgroup.WaitGroup
}

// New returns an empty Cache bounded by cfg.Size.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()
	return &Cache{
		cfg:  cfg,
		ll:   list.New(),
		idx:  make(map[uint64]*list.Element),
		fill: waitgroup.New(cfg.MaxTTL),
	}
}

// Lookup returns a copy of the cached response for q, with answer TTLs
// decremented by elapsed wall time since insertion, or ok=false on a
// miss or an expired entry. A hit moves the entry to the front of the
// LRU list.
func (c *Cache) Lookup(q dns.Question, now time.Time) (resp *dns.Msg, ok bool) {
	key := Key(q)

	c.mu.Lock()
	el, found := c.idx[key]
	if !found {
		c.mu.Unlock()
		return nil, false
	}
	e := el.Value.(*entry)
	if e.expired(now) {
		c.ll.Remove(el)
		delete(c.idx, key)
		c.mu.Unlock()
		return nil, false
	}
	c.ll.MoveToFront(el)
	out := e.msg.Copy()
	elapsed := uint32(now.Sub(e.storeAt).Seconds())
	c.mu.Unlock()

	dnsmsg.DecrementAnswerTTLs(out, elapsed)
	return out, true
}

// Store inserts resp under q's key if resp is cacheable: a NOERROR
// response with at least one answer record, or an NXDOMAIN response
// (cached with the configured negative TTL). Any other response is not
// stored. Inserting evicts the least-recently-used entry if the cache is
// at capacity.
func (c *Cache) Store(q dns.Question, resp *dns.Msg, now time.Time) {
	var ttl time.Duration
	switch classify(resp) {
	case typeSuccess:
		ttl = effectiveTTL(minAnswerTTL(resp), c.cfg.MinTTL, c.cfg.MaxTTL)
	case typeNXDomain:
		ttl = c.cfg.NegativeTTL
	default:
		return
	}

	key := Key(q)
	e := &entry{key: key, msg: resp.Copy(), storeAt: now, ttl: ttl}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.idx[key]; ok {
		el.Value = e
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(e)
	c.idx[key] = el

	for c.ll.Len() > c.cfg.Size {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.idx, oldest.Value.(*entry).key)
	}
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// BeginFill reports whether another goroutine is already filling key
// and, if not, registers the caller as the one that will. Callers that
// get false are now the filler and must call EndFill when done; callers
// that get true must not call EndFill (they never registered) and
// should just Wait then retry Lookup. Only the filler ever registers:
// if every caller registered regardless of the result, EndFill would
// need one call per caller before the waitgroup's internal refcount
// could reach zero, and a waiting caller can't supply that call until
// after it has already unblocked from Wait.
func (c *Cache) BeginFill(key uint64) (alreadyFilling bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	already := c.fill.Get(key) > 0
	if !already {
		c.fill.Add(key)
	}
	return already
}

// Wait blocks until the in-flight fill for key completes.
func (c *Cache) Wait(key uint64) {
	c.fill.Wait(key)
}

// EndFill signals that the fill for key has completed.
func (c *Cache) EndFill(key uint64) {
	c.fill.Done(key)
}
