package processors

import (
	"context"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
	"github.com/cleandns/cleandns/upstream"
)

// System resolves via the host's default resolver, usable directly in
// an exec list without going through `forward`.
type System struct {
	client upstream.SystemClient
}

// NewSystem returns a System plugin.
func NewSystem() *System {
	return &System{}
}

// Run implements plugingraph.Processor.
func (s *System) Run(ctx context.Context, qc *plugingraph.Context) {
	req := &dns.Msg{Question: []dns.Question{qc.Question}}
	req.Id = dns.Id()

	resp, err := s.client.Exchange(ctx, req)
	if err != nil {
		return
	}
	dnsmsg.MirrorToRequest(resp, req)
	qc.Response = resp
	qc.ResolvedVia = s.client.String()
	qc.Abort = true
}
