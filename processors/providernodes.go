package processors

import (
	"context"

	"github.com/cleandns/cleandns/plugingraph"
	"github.com/cleandns/cleandns/providers"
)

// DomainSetNode adapts a providers.DomainSet into a graph node. Provider
// nodes are loaded eagerly during graph construction and are thereafter
// immutable and shared. DomainSetNode has no runtime effect of its own;
// it exists only so `matcher`'s `provider:<tag>` references resolve to
// something it can query.
type DomainSetNode struct {
	*providers.DomainSet
}

// Run implements plugingraph.Processor as a no-op: a provider node is
// never itself placed in an exec list.
func (*DomainSetNode) Run(context.Context, *plugingraph.Context) {}

// IPSetNode adapts a providers.IPSet into a graph node, analogous to
// DomainSetNode.
type IPSetNode struct {
	*providers.IPSet
}

// Run implements plugingraph.Processor as a no-op.
func (*IPSetNode) Run(context.Context, *plugingraph.Context) {}
