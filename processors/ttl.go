package processors

import (
	"context"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// TTL clamps the answer section's TTLs into [Min, Max] when a response
// is present.
type TTL struct {
	Min uint32
	Max uint32 // 0 means unlimited
}

// NewTTL returns a TTL plugin. max=0 means unlimited.
func NewTTL(min, max uint32) *TTL {
	return &TTL{Min: min, Max: max}
}

// Run implements plugingraph.Processor.
func (t *TTL) Run(ctx context.Context, qc *plugingraph.Context) {
	if qc.Response == nil {
		return
	}
	dnsmsg.ClampAnswerTTLs(qc.Response, t.Min, t.Max)
}
