package processors

import (
	"context"
	"time"

	"github.com/cleandns/cleandns/cache"
	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// Cache wraps a cache.Cache around a sub-sequence, serving hits directly
// and populating the cache from misses.
type Cache struct {
	ExecTags []string

	store *cache.Cache
	exec  []plugingraph.Processor
}

// NewCache returns a Cache plugin bounded by cfg, wrapping the named
// exec sub-sequence.
func NewCache(cfg cache.Config, execTags []string) *Cache {
	return &Cache{ExecTags: execTags, store: cache.New(cfg)}
}

// ResolveTags implements plugingraph.Resolver.
func (c *Cache) ResolveTags(lookup func(string) (plugingraph.Processor, bool)) error {
	exec, err := plugingraph.ResolveList(c.ExecTags, lookup)
	if err != nil {
		return err
	}
	c.exec = exec
	return nil
}

// Run implements plugingraph.Processor: check the cache, run the exec
// sub-sequence on a miss, then store the result if it is cacheable.
// Concurrent misses for the same question are coalesced through the
// store's single-flight fill tracking: the first miss resolves, every
// other concurrent miss for that question waits for it and reuses
// whatever it stored instead of re-dispatching the same exec sequence.
func (c *Cache) Run(ctx context.Context, qc *plugingraph.Context) {
	now := time.Now()

	if resp, ok := c.store.Lookup(qc.Question, now); ok {
		qc.Response = resp
		qc.Abort = true
		qc.Stats.RecordCacheHit(dnsmsg.Normalize(qc.Question.Name))
		return
	}

	key := cache.Key(qc.Question)
	if c.store.BeginFill(key) {
		// We didn't register: only the filler did, and only it calls
		// EndFill. Wait for its cancel signal, then retry the lookup.
		c.store.Wait(key)

		if resp, ok := c.store.Lookup(qc.Question, now); ok {
			qc.Response = resp
			qc.Abort = true
			qc.Stats.RecordCacheHit(dnsmsg.Normalize(qc.Question.Name))
			return
		}
		// The filler's result wasn't cacheable, or it failed outright:
		// resolve it ourselves rather than wait on it a second time.
		c.resolveAndStore(ctx, qc, now)
		return
	}
	defer c.store.EndFill(key)

	c.resolveAndStore(ctx, qc, now)
}

func (c *Cache) resolveAndStore(ctx context.Context, qc *plugingraph.Context, now time.Time) {
	plugingraph.RunSequence(ctx, qc, c.exec)

	if qc.Response == nil || !dnsmsg.IsAcceptable(qc.Response.Rcode) {
		return
	}
	if qc.Response.Rcode == dnsmsg.RcodeNoError && len(qc.Response.Answer) == 0 {
		return
	}
	c.store.Store(qc.Question, qc.Response, now)
}
