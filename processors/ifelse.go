package processors

import (
	"context"
	"fmt"

	"github.com/cleandns/cleandns/plugingraph"
)

// If evaluates a named Condition and runs exec or else_exec accordingly,
// generalized from a single primary/else tag pair into a sub-sequence
// per branch.
type If struct {
	CondTag      string
	ExecTags     []string
	ElseExecTags []string

	cond     plugingraph.Condition
	exec     []plugingraph.Processor
	elseExec []plugingraph.Processor
}

// NewIf returns an If naming the given condition and branch tags.
func NewIf(condTag string, execTags, elseExecTags []string) *If {
	return &If{CondTag: condTag, ExecTags: execTags, ElseExecTags: elseExecTags}
}

// ResolveTags implements plugingraph.Resolver. Graph construction fails
// if CondTag doesn't resolve to something exposing Condition: only
// processors exposing that capability may appear in `if`.
func (n *If) ResolveTags(lookup func(string) (plugingraph.Processor, bool)) error {
	p, ok := lookup(n.CondTag)
	if !ok {
		return fmt.Errorf("processors: if: condition tag %q not found", n.CondTag)
	}
	cond, ok := p.(plugingraph.Condition)
	if !ok {
		return fmt.Errorf("processors: if: tag %q does not implement Condition", n.CondTag)
	}
	n.cond = cond

	exec, err := plugingraph.ResolveList(n.ExecTags, lookup)
	if err != nil {
		return err
	}
	elseExec, err := plugingraph.ResolveList(n.ElseExecTags, lookup)
	if err != nil {
		return err
	}
	n.exec, n.elseExec = exec, elseExec
	return nil
}

// Run implements plugingraph.Processor.
func (n *If) Run(ctx context.Context, qc *plugingraph.Context) {
	if n.cond.Check(ctx, qc) {
		plugingraph.RunSequence(ctx, qc, n.exec)
		return
	}
	plugingraph.RunSequence(ctx, qc, n.elseExec)
}
