package processors

import (
	"context"

	"github.com/cleandns/cleandns/plugingraph"
)

// Return sets ctx.abort, halting the enclosing sequence.
type Return struct{}

// Run implements plugingraph.Processor.
func (Return) Run(ctx context.Context, qc *plugingraph.Context) {
	qc.Abort = true
}
