package processors

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// DefaultHostsTTL is the fixed TTL hosts assigns synthesized records.
const DefaultHostsTTL = 3600

// Hosts answers A/AAAA queries from a static name->address table, loaded
// from files and/or inline config.
type Hosts struct {
	mappings map[string][]net.IP
}

// NewHosts builds a Hosts table from hosts-file paths and an inline
// name->addresses map.
func NewHosts(files []string, inline map[string][]string) (*Hosts, error) {
	h := &Hosts{mappings: make(map[string][]net.IP)}

	for _, path := range files {
		if err := h.loadFile(path); err != nil {
			return nil, fmt.Errorf("hosts %s: %w", path, err)
		}
	}

	for name, ips := range inline {
		name = dnsmsg.Normalize(name)
		for _, s := range ips {
			ip := net.ParseIP(s)
			if ip == nil {
				return nil, fmt.Errorf("hosts: invalid ip %q for %s", s, name)
			}
			h.mappings[name] = append(h.mappings[name], ip)
		}
	}
	return h, nil
}

func (h *Hosts) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		ip := net.ParseIP(fields[0])
		if ip == nil {
			continue
		}
		for _, name := range fields[1:] {
			name = dnsmsg.Normalize(name)
			h.mappings[name] = append(h.mappings[name], ip)
		}
	}
	return sc.Err()
}

// Run implements plugingraph.Processor.
func (h *Hosts) Run(ctx context.Context, qc *plugingraph.Context) {
	if qc.Response != nil {
		return
	}
	if qc.Question.Qtype != dns.TypeA && qc.Question.Qtype != dns.TypeAAAA {
		return
	}

	ips, ok := h.mappings[dnsmsg.Normalize(qc.Question.Name)]
	if !ok {
		return
	}

	resp := &dns.Msg{Question: []dns.Question{qc.Question}}
	resp.Rcode = dns.RcodeSuccess

	for _, ip := range ips {
		rr, ok := buildHostRR(qc.Question, ip)
		if ok {
			resp.Answer = append(resp.Answer, rr)
		}
	}
	if len(resp.Answer) == 0 {
		return
	}

	qc.Response = resp
	qc.Abort = true
}

func buildHostRR(q dns.Question, ip net.IP) (dns.RR, bool) {
	hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: DefaultHostsTTL}
	switch q.Qtype {
	case dns.TypeA:
		if ip4 := ip.To4(); ip4 != nil {
			return &dns.A{Hdr: hdr, A: ip4}, true
		}
	case dns.TypeAAAA:
		if ip4 := ip.To4(); ip4 == nil {
			return &dns.AAAA{Hdr: hdr, AAAA: ip.To16()}, true
		}
	}
	return nil, false
}
