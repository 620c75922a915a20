// Package listener runs the UDP front door, dispatching each decoded
// query into the plugin graph's entry processor, built on a *dns.Server
// over a dns.HandlerFunc.
package listener

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/miekg/dns"
	"github.com/semihalev/zlog/v2"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
	"github.com/cleandns/cleandns/stats"
)

// Listener serves DNS queries over UDP by running them through a plugin
// graph's entry processor.
type Listener struct {
	Addr  string
	Entry plugingraph.Processor
	Stats *stats.Aggregator

	server *dns.Server
}

// New returns a Listener bound to addr, invoking entry for every query.
func New(addr string, entry plugingraph.Processor, s *stats.Aggregator) *Listener {
	return &Listener{Addr: addr, Entry: entry, Stats: s}
}

// ListenAndServe blocks serving UDP queries until the listener is shut
// down or the underlying socket fails.
func (l *Listener) ListenAndServe() error {
	l.server = &dns.Server{
		Addr:    l.Addr,
		Net:     "udp",
		Handler: dns.HandlerFunc(l.ServeDNS),
		UDPSize: dns.DefaultMsgSize,
	}
	zlog.Info("listening", "addr", l.Addr, "net", "udp")
	return l.server.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (l *Listener) Shutdown() error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown()
}

// ServeDNS implements dns.Handler. Decode failures never reach here:
// miekg/dns's server drops them before calling the handler. A panic
// anywhere in the plugin graph is caught here so one bad node can't take
// the listener down; the client gets SERVFAIL and the panic is logged.
func (l *Listener) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error("recovered in ServeDNS", "recover", r)
			_, _ = os.Stderr.WriteString(fmt.Sprintf("panic: %v\n\n", r))
			debug.PrintStack()
			_ = w.WriteMsg(dnsmsg.Reject(req, dnsmsg.RcodeServFail))
		}
	}()

	if len(req.Question) == 0 {
		return
	}
	now := time.Now()
	q := req.Question[0]
	qname := dnsmsg.Normalize(q.Name)

	l.Stats.RecordQuery(qname, now)

	qc := plugingraph.New(q, w.RemoteAddr(), l.Stats)
	qc.StartedAt = now

	ctx := context.Background()
	plugingraph.Invoke(ctx, qc, l.Entry)

	if qc.Response == nil {
		_ = w.WriteMsg(dnsmsg.Reject(req, dnsmsg.RcodeServFail))
		return
	}

	dnsmsg.MirrorToRequest(qc.Response, req)
	l.Stats.RecordAnswer(qname, qc.ResolvedVia, answerAddresses(qc.Response))

	_ = w.WriteMsg(qc.Response)
}

func answerAddresses(msg *dns.Msg) []string {
	var ips []string
	for _, rr := range msg.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			ips = append(ips, rr.A.String())
		case *dns.AAAA:
			ips = append(ips, rr.AAAA.String())
		}
	}
	return ips
}
