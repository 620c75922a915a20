package processors

import (
	"context"
	"time"

	"github.com/cleandns/cleandns/plugingraph"
)

// Delay suspends execution for a fixed duration. Cancelling the enclosing
// context cancels the delay.
type Delay struct {
	Duration time.Duration
}

// NewDelay returns a Delay plugin for ms milliseconds.
func NewDelay(ms int) *Delay {
	return &Delay{Duration: time.Duration(ms) * time.Millisecond}
}

// Run implements plugingraph.Processor.
func (d *Delay) Run(ctx context.Context, qc *plugingraph.Context) {
	if d.Duration <= 0 {
		return
	}
	timer := time.NewTimer(d.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
