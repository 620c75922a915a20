package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cleandns/cleandns/plugingraph"
)

type fakeCondition struct{ v bool }

func (f fakeCondition) Check(ctx context.Context, qc *plugingraph.Context) bool { return f.v }
func (f fakeCondition) Run(ctx context.Context, qc *plugingraph.Context)        {}

func lookupMap(m map[string]plugingraph.Processor) func(string) (plugingraph.Processor, bool) {
	return func(tag string) (plugingraph.Processor, bool) {
		p, ok := m[tag]
		return p, ok
	}
}

func TestIfRunsExecWhenTrue(t *testing.T) {
	var branch string
	exec := &fakeProcessor{run: func(qc *plugingraph.Context) { branch = "exec" }}
	elseExec := &fakeProcessor{run: func(qc *plugingraph.Context) { branch = "else" }}

	n := NewIf("cond", []string{"exec"}, []string{"else"})
	require.NoError(t, n.ResolveTags(lookupMap(map[string]plugingraph.Processor{
		"cond": fakeCondition{v: true}, "exec": exec, "else": elseExec,
	})))

	n.Run(context.Background(), newQC("example.com."))
	require.Equal(t, "exec", branch)
}

func TestIfRunsElseWhenFalse(t *testing.T) {
	var branch string
	exec := &fakeProcessor{run: func(qc *plugingraph.Context) { branch = "exec" }}
	elseExec := &fakeProcessor{run: func(qc *plugingraph.Context) { branch = "else" }}

	n := NewIf("cond", []string{"exec"}, []string{"else"})
	require.NoError(t, n.ResolveTags(lookupMap(map[string]plugingraph.Processor{
		"cond": fakeCondition{v: false}, "exec": exec, "else": elseExec,
	})))

	n.Run(context.Background(), newQC("example.com."))
	require.Equal(t, "else", branch)
}

func TestIfRejectsNonCondition(t *testing.T) {
	n := NewIf("notacond", nil, nil)
	err := n.ResolveTags(lookupMap(map[string]plugingraph.Processor{
		"notacond": &fakeProcessor{},
	}))
	require.Error(t, err)
}
