package plugingraph

import (
	"context"
	"fmt"

	"github.com/semihalev/zlog/v2"
)

// Processor is the single operation every plugin implements.
type Processor interface {
	// Run may mutate qc. ctx carries cancellation/deadlines for any I/O
	// the processor suspends on.
	Run(ctx context.Context, qc *Context)
}

// Condition is the capability a processor may additionally expose to be
// usable as the `if` branch.
type Condition interface {
	Check(ctx context.Context, qc *Context) bool
}

// Resolver is implemented by processors that hold tag references in their
// arguments. The graph builder calls ResolveTags once, after all tagged
// processors have been constructed, replacing each reference with a
// direct handle.
type Resolver interface {
	ResolveTags(lookup func(tag string) (Processor, bool)) error
}

// Graph is the immutable tag->processor mapping.
type Graph struct {
	entry Processor
	nodes map[string]Processor
}

// NewGraph builds a Graph from already-constructed nodes and an entry tag.
// Every tag reference inside a node's arguments must already have been
// resolved (via Resolver) before this is called; NewGraph itself only
// validates the entry tag resolves.
func NewGraph(nodes map[string]Processor, entryTag string) (*Graph, error) {
	entry, ok := nodes[entryTag]
	if !ok {
		return nil, fmt.Errorf("plugingraph: entry tag %q not found", entryTag)
	}
	return &Graph{entry: entry, nodes: nodes}, nil
}

// Entry returns the graph's entry processor, what the listener invokes
// for every request.
func (g *Graph) Entry() Processor {
	return g.entry
}

// Lookup resolves tag to its processor, for use as the lookup function
// passed to Resolver.ResolveTags.
func (g *Graph) Lookup(tag string) (Processor, bool) {
	p, ok := g.nodes[tag]
	return p, ok
}

// Invoke runs p against qc, enforcing the recursion-depth cap. It is the
// single entry point every container processor
// (sequence, if, fallback, cache) must use to dispatch into a resolved
// child, so the cap applies uniformly regardless of which processor
// kind recurses.
func Invoke(ctx context.Context, qc *Context, p Processor) {
	if p == nil {
		return
	}
	qc.depth++
	defer func() { qc.depth-- }()

	if qc.depth > MaxDepth {
		zlog.Warn("plugingraph: recursion depth exceeded, aborting (possible cycle in plugin graph)",
			zlog.String("query", qc.Question.Name))
		qc.Abort = true
		return
	}

	p.Run(ctx, qc)
}

// RunSequence runs procs in order, stopping early if qc.Abort becomes
// set. Shared by sequence, if's branches, fallback's primary/secondary,
// and cache's exec so abort semantics are identical everywhere a tag
// list is executed.
func RunSequence(ctx context.Context, qc *Context, procs []Processor) {
	for _, p := range procs {
		if qc.Abort {
			return
		}
		Invoke(ctx, qc, p)
	}
}

// ResolveList resolves a list of tags to Processors via lookup, returning
// an error naming the first tag that does not resolve. Every tag
// reference inside a processor's arguments must resolve within the
// mapping, or graph construction fails.
func ResolveList(tags []string, lookup func(string) (Processor, bool)) ([]Processor, error) {
	out := make([]Processor, 0, len(tags))
	for _, tag := range tags {
		p, ok := lookup(tag)
		if !ok {
			return nil, fmt.Errorf("plugingraph: unresolved tag %q", tag)
		}
		out = append(out, p)
	}
	return out, nil
}
