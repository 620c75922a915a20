package processors

import (
	"context"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// Fallback runs Primary, and if it didn't leave an acceptable response,
// clears state and runs Secondary exactly once.
type Fallback struct {
	PrimaryTags   []string
	SecondaryTags []string

	primary   []plugingraph.Processor
	secondary []plugingraph.Processor
}

// NewFallback returns a Fallback naming its primary/secondary tag lists.
func NewFallback(primaryTags, secondaryTags []string) *Fallback {
	return &Fallback{PrimaryTags: primaryTags, SecondaryTags: secondaryTags}
}

// ResolveTags implements plugingraph.Resolver.
func (f *Fallback) ResolveTags(lookup func(string) (plugingraph.Processor, bool)) error {
	primary, err := plugingraph.ResolveList(f.PrimaryTags, lookup)
	if err != nil {
		return err
	}
	secondary, err := plugingraph.ResolveList(f.SecondaryTags, lookup)
	if err != nil {
		return err
	}
	f.primary, f.secondary = primary, secondary
	return nil
}

// Run implements plugingraph.Processor: runs primary as a sub-sequence,
// and if the result is absent or its rcode isn't NOERROR/NXDOMAIN,
// clears any partial response and abort state and runs secondary.
func (f *Fallback) Run(ctx context.Context, qc *plugingraph.Context) {
	plugingraph.RunSequence(ctx, qc, f.primary)

	if qc.Response != nil && dnsmsg.IsAcceptable(qc.Response.Rcode) {
		return
	}

	qc.Reset()
	plugingraph.RunSequence(ctx, qc, f.secondary)
}
