// Package plugingraph implements CleanDNS's plugin execution engine: a
// runtime interpreter over a user-declared DAG of processors that mutates
// a per-query Context.
//
// The shape generalizes the usual shared per-request struct threaded
// through a linear middleware chain with an abort/cancel flag into a
// tree-shaped graph (sequence/if/fallback), with tag references resolved
// once at build time into direct handles.
package plugingraph

import (
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/stats"
)

// Context is the per-query state passed through the processor graph.
type Context struct {
	// Question is the client's question. Immutable after construction.
	Question dns.Question

	// ClientAddr is the originating endpoint. Immutable after construction.
	ClientAddr net.Addr

	// Response is the answer a processor has produced, if any.
	Response *dns.Msg

	// ResolvedVia names what produced Response: an upstream client's
	// String() (e.g. "udp:1.1.1.1:53") when `forward` won a race, or
	// "system" when the `system` processor answered. `hosts` and `reject`
	// answer without setting it, so it stays empty for their responses.
	ResolvedVia string

	// Abort stops an enclosing sequence from iterating further children.
	Abort bool

	// Stats is the shared statistics aggregator handle.
	Stats *stats.Aggregator

	// StartedAt is the monotonic instant at context creation, used by
	// `delay` and for latency accounting.
	StartedAt time.Time

	// depth counts nested tag dispatches, enforcing a recursion cap since
	// the graph does not otherwise detect cycles.
	depth int
}

// New constructs a Context for one client request. q.Name is normalized
// (lowercased, dot-terminated) here so every processor and provider
// downstream can compare/look up names without each needing its own
// lowercasing step; the client sees the original-case name regardless,
// since the listener mirrors the reply's question section from the raw
// request rather than from qc.Question.
func New(q dns.Question, clientAddr net.Addr, s *stats.Aggregator) *Context {
	q.Name = dnsmsg.Normalize(q.Name)
	return &Context{
		Question:   q,
		ClientAddr: clientAddr,
		Stats:      s,
		StartedAt:  time.Now(),
	}
}

// MaxDepth bounds recursive tag dispatch. A user-constructed cycle in
// the plugin graph hits this cap instead of recursing until the Go
// runtime stack overflows.
const MaxDepth = 64

// Reset clears abort and response so the Context can be reused for a
// logically fresh top-level execution scope. Not used by the listener
// (which creates one Context per request) but available to callers that
// re-enter a graph, such as `fallback`'s secondary attempt.
func (c *Context) Reset() {
	c.Abort = false
	c.Response = nil
	c.ResolvedVia = ""
}

// Fork returns a shallow copy of c suitable for an isolated concurrent
// sub-execution: each child gets its own scratch response and the
// parent installs the winner, rather than sharing the Response slot
// across racing children. The fork shares Stats and ClientAddr/Question
// but starts with its own Response/Abort so concurrent branches never
// write the same slot. `forward` does not use it: it races upstream
// clients, each returning its own message, and writes only the winner.
func (c *Context) Fork() *Context {
	fork := *c
	fork.Response = nil
	fork.Abort = false
	fork.ResolvedVia = ""
	return &fork
}
