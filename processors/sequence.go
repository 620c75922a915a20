// Package processors implements the built-in plugin kinds: sequence, if,
// return, reject, delay, matcher, hosts, ttl, forward, system, cache,
// fallback, plus the nodes adapting domain_set/ip_set/geosite providers
// (which live in package providers). Each type here implements
// plugingraph.Processor and, where it holds tag references, the
// plugingraph.Resolver two-phase construction pattern the graph builder
// uses.
package processors

import (
	"context"

	"github.com/cleandns/cleandns/plugingraph"
)

// Sequence runs its children in order, stopping as soon as qc.Abort is
// set.
type Sequence struct {
	Tags []string

	children []plugingraph.Processor
}

// NewSequence returns a Sequence naming the given child tags.
func NewSequence(tags []string) *Sequence {
	return &Sequence{Tags: tags}
}

// ResolveTags implements plugingraph.Resolver.
func (s *Sequence) ResolveTags(lookup func(string) (plugingraph.Processor, bool)) error {
	children, err := plugingraph.ResolveList(s.Tags, lookup)
	if err != nil {
		return err
	}
	s.children = children
	return nil
}

// Run implements plugingraph.Processor.
func (s *Sequence) Run(ctx context.Context, qc *plugingraph.Context) {
	plugingraph.RunSequence(ctx, qc, s.children)
}
