package upstream

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// DefaultSystemTTL is the fixed TTL assigned to records synthesized from
// the host's default resolver.
const DefaultSystemTTL = 60

// SystemClient resolves via the host's default resolver. It only answers
// A and AAAA; any other qtype yields a NOERROR response with an empty
// answer section.
type SystemClient struct{}

// String identifies this client as the upstream that answered a query,
// for stats/logging purposes.
func (SystemClient) String() string { return "system" }

// Exchange resolves req's question using net.DefaultResolver.
func (SystemClient) Exchange(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	if len(req.Question) == 0 {
		return nil, fmt.Errorf("upstream system: empty question")
	}
	q := req.Question[0]

	resp := new(dns.Msg)
	resp.SetReply(req)

	if q.Qtype != dns.TypeA && q.Qtype != dns.TypeAAAA {
		return resp, nil
	}

	network := "ip4"
	if q.Qtype == dns.TypeAAAA {
		network = "ip6"
	}

	addrs, err := net.DefaultResolver.LookupIP(ctx, network, q.Name)
	if err != nil {
		return nil, fmt.Errorf("upstream system: lookup: %w", err)
	}

	for _, ip := range addrs {
		rr, err := buildAddrRR(q.Name, q.Qtype, ip)
		if err != nil {
			continue
		}
		resp.Answer = append(resp.Answer, rr)
	}
	return resp, nil
}

func buildAddrRR(name string, qtype uint16, ip net.IP) (dns.RR, error) {
	hdr := dns.RR_Header{Name: name, Rrtype: qtype, Class: dns.ClassINET, Ttl: DefaultSystemTTL}
	switch qtype {
	case dns.TypeA:
		if ip4 := ip.To4(); ip4 != nil {
			return &dns.A{Hdr: hdr, A: ip4}, nil
		}
	case dns.TypeAAAA:
		if ip16 := ip.To16(); ip16 != nil {
			return &dns.AAAA{Hdr: hdr, AAAA: ip16}, nil
		}
	}
	return nil, fmt.Errorf("upstream system: address family mismatch")
}
