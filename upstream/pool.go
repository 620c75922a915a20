package upstream

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"

	"github.com/cleandns/cleandns/dnsmsg"
)

// Pool holds the resolved Clients for a `forward` plugin instance and
// races a subset of them concurrently, the same errgroup-based shape
// used to race root/TLD servers in a recursive lookup, generalized from
// a fixed server set to an arbitrary configured upstream list.
type Pool struct {
	Clients []Client

	// Concurrent caps how many upstreams are dispatched in parallel per
	// query. A value <= 0 or >= len(Clients) races all of them.
	Concurrent int
}

type raceResult struct {
	resp   *dns.Msg
	err    error
	client Client
}

// Race dispatches to up to p.Concurrent upstreams concurrently and
// returns the first response whose Rcode is acceptable (NOERROR or
// NXDOMAIN), alongside the identity (Client.String()) of whichever
// upstream produced it; remaining in-flight upstreams are left to be
// cancelled via raceCtx. If none of the raced upstreams answer
// acceptably, Race reports the last error seen.
func (p *Pool) Race(ctx context.Context, req *dns.Msg) (*dns.Msg, string, error) {
	if len(p.Clients) == 0 {
		return nil, "", fmt.Errorf("upstream pool: no clients configured")
	}

	order := rand.Perm(len(p.Clients))
	n := p.Concurrent
	if n <= 0 || n > len(order) {
		n = len(order)
	}
	order = order[:n]

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// errgroup.WithContext supplies the shared context each dispatch
	// exchanges under. No dispatch returns an error, so the group never
	// cancels it by itself; it ends when Race cancels raceCtx after
	// picking a winner (or on return). Race reads results off its own
	// channel rather than g.Wait(), since the group's
	// all-goroutines-return semantics can't express "stop at the first
	// acceptable answer" on its own.
	g, gctx := errgroup.WithContext(raceCtx)
	results := make(chan raceResult, n)

	for _, idx := range order {
		client := p.Clients[idx]
		g.Go(func() error {
			resp, err := client.Exchange(gctx, req)
			select {
			case results <- raceResult{resp: resp, err: err, client: client}:
			case <-raceCtx.Done():
			}
			return nil
		})
	}

	var lastErr error
	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				lastErr = r.err
				continue
			}
			if dnsmsg.IsAcceptable(r.resp.Rcode) {
				cancel()
				return r.resp, r.client.String(), nil
			}
			lastErr = fmt.Errorf("upstream pool: unacceptable rcode %d", r.resp.Rcode)
		case <-raceCtx.Done():
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("upstream pool: no upstream responded")
	}
	return nil, "", lastErr
}
