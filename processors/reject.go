package processors

import (
	"context"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// DefaultRejectRcode is REFUSED, `reject`'s default rcode.
const DefaultRejectRcode = dnsmsg.RcodeRefused

// Reject writes a synthetic response carrying Rcode and halts execution.
type Reject struct {
	Rcode int
}

// NewReject returns a Reject plugin. An Rcode of 0 is treated as
// "unset" and replaced with DefaultRejectRcode, since REFUSED is itself
// a valid explicit rcode (5), never the zero value.
func NewReject(rcode int) *Reject {
	if rcode == 0 {
		rcode = DefaultRejectRcode
	}
	return &Reject{Rcode: rcode}
}

// Run implements plugingraph.Processor. The listener mirrors the
// client's transaction id onto qc.Response after the graph returns, so
// Reject only needs to carry the question and rcode.
func (r *Reject) Run(ctx context.Context, qc *plugingraph.Context) {
	req := &dns.Msg{Question: []dns.Question{qc.Question}}
	qc.Response = dnsmsg.Reject(req, r.Rcode)
	qc.Abort = true
}
