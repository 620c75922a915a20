package plugingraph

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

type recordingProc struct {
	name string
	run  func(ctx context.Context, qc *Context)
	log  *[]string
}

func (p *recordingProc) Run(ctx context.Context, qc *Context) {
	*p.log = append(*p.log, p.name)
	if p.run != nil {
		p.run(ctx, qc)
	}
}

func newCtx() *Context {
	return New(dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}, nil, nil)
}

func TestRunSequenceStopsOnAbort(t *testing.T) {
	var log []string
	a := &recordingProc{name: "a", log: &log}
	b := &recordingProc{name: "b", log: &log, run: func(_ context.Context, qc *Context) { qc.Abort = true }}
	c := &recordingProc{name: "c", log: &log}

	qc := newCtx()
	RunSequence(context.Background(), qc, []Processor{a, b, c})

	require.Equal(t, []string{"a", "b"}, log)
	require.True(t, qc.Abort)
}

func TestInvokeEnforcesRecursionCap(t *testing.T) {
	qc := newCtx()
	calls := 0

	var self Processor
	looping := &recordingProc{name: "loop", log: &[]string{}}
	looping.run = func(ctx context.Context, qc *Context) {
		calls++
		Invoke(ctx, qc, self)
	}
	self = looping

	Invoke(context.Background(), qc, looping)

	require.LessOrEqual(t, calls, MaxDepth+1)
	require.True(t, qc.Abort)
}

func TestGraphLookupAndEntry(t *testing.T) {
	entry := &recordingProc{name: "entry", log: &[]string{}}
	g, err := NewGraph(map[string]Processor{"entry": entry}, "entry")
	require.NoError(t, err)
	require.Same(t, entry, g.Entry())

	p, ok := g.Lookup("entry")
	require.True(t, ok)
	require.Same(t, entry, p)

	_, ok = g.Lookup("missing")
	require.False(t, ok)
}

func TestNewGraphMissingEntry(t *testing.T) {
	_, err := NewGraph(map[string]Processor{}, "entry")
	require.Error(t, err)
}
