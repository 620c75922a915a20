package processors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayWaitsAtLeastDuration(t *testing.T) {
	d := NewDelay(10)
	qc := newQC("example.com.")

	start := time.Now()
	d.Run(context.Background(), qc)
	require.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestDelayCancelledByContext(t *testing.T) {
	d := NewDelay(1000)
	qc := newQC("example.com.")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	d.Run(ctx, qc)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestDelayZeroIsNoop(t *testing.T) {
	d := NewDelay(0)
	qc := newQC("example.com.")

	start := time.Now()
	d.Run(context.Background(), qc)
	require.Less(t, time.Since(start), 50*time.Millisecond)
}
