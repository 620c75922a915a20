package processors

import (
	"context"

	"github.com/miekg/dns"
	"golang.org/x/time/rate"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
	"github.com/cleandns/cleandns/upstream"
)

// dohDialRate bounds how many DoH requests (each one a possible new TLS
// dial) a single Forward instance starts per second, with a burst of
// `concurrent`, smoothing the goroutine/TLS-handshake burst a large
// `concurrent` setting would otherwise produce.
const dohDialRate = 50

// Forward races a configured list of upstreams and installs the first
// acceptable response. It owns the upstream.Pool for the lifetime of the
// graph; the pool itself holds no per-query state.
type Forward struct {
	pool *upstream.Pool
}

// NewForward builds a Forward plugin from resolved upstream specs. Every
// DoH client built for this instance shares one dial-rate limiter.
func NewForward(specs []upstream.Spec, concurrent int) *Forward {
	limiter := rate.NewLimiter(rate.Limit(dohDialRate), concurrent)
	if limiter.Burst() < 1 {
		limiter = rate.NewLimiter(rate.Limit(dohDialRate), 1)
	}

	clients := make([]upstream.Client, 0, len(specs))
	for _, spec := range specs {
		clients = append(clients, buildClient(spec, limiter))
	}
	return &Forward{pool: &upstream.Pool{Clients: clients, Concurrent: concurrent}}
}

func buildClient(spec upstream.Spec, dohLimiter *rate.Limiter) upstream.Client {
	switch spec.Kind {
	case upstream.KindDoH:
		return &upstream.DoHClient{URL: spec.URL, Socks5: spec.Socks5Addr, DialLimiter: dohLimiter}
	case upstream.KindSystem:
		return upstream.SystemClient{}
	default:
		return &upstream.UDPClient{Addr: spec.Addr, Socks5: spec.Socks5Addr}
	}
}

// Run implements plugingraph.Processor. A successful race writes the
// winning response into qc.Response and sets qc.Abort; if every
// dispatch fails, Forward leaves no response and does not set abort.
func (f *Forward) Run(ctx context.Context, qc *plugingraph.Context) {
	req := &dns.Msg{Question: []dns.Question{qc.Question}}
	req.Id = dns.Id()
	req.RecursionDesired = true

	resp, remote, err := f.pool.Race(ctx, req)
	if err != nil {
		return
	}

	dnsmsg.MirrorToRequest(resp, req)
	qc.Response = resp
	qc.ResolvedVia = remote
	qc.Abort = true
}
