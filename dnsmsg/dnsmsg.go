// Package dnsmsg provides CleanDNS's typed view over the DNS wire format.
//
// The wire codec itself is github.com/miekg/dns; this package adds the
// lowercased, dot-terminated name conventions and synthetic-response
// helpers the plugin graph relies on.
package dnsmsg

import (
	"strings"

	"github.com/miekg/dns"
)

// Rcodes the plugin graph names. Only NOERROR and NXDOMAIN are acceptable
// (see IsAcceptable) for a response to "win" a forward race or survive a
// fallback primary attempt.
const (
	RcodeNoError  = dns.RcodeSuccess
	RcodeNXDomain = dns.RcodeNameError
	RcodeServFail = dns.RcodeServerFailure
	RcodeRefused  = dns.RcodeRefused
)

// Normalize returns name lowercased and dot-terminated, the form names
// are stored in throughout this package.
func Normalize(name string) string {
	return strings.ToLower(dns.Fqdn(name))
}

// IsAcceptable reports whether rcode is one `forward` and `fallback` treat
// as a usable answer.
func IsAcceptable(rcode int) bool {
	return rcode == RcodeNoError || rcode == RcodeNXDomain
}

// Decode unpacks a client datagram. Decode failures are the listener's
// silent-drop case.
func Decode(buf []byte) (*dns.Msg, error) {
	m := new(dns.Msg)
	if err := m.Unpack(buf); err != nil {
		return nil, err
	}
	return m, nil
}

// Encode packs a message back to wire format.
func Encode(m *dns.Msg) ([]byte, error) {
	return m.Pack()
}

// Reject builds a synthetic response carrying rcode, mirroring req's id
// and question, with an empty answer section. Used by both `reject` and
// the listener's SERVFAIL fallback when the graph leaves no response.
func Reject(req *dns.Msg, rcode int) *dns.Msg {
	m := new(dns.Msg)
	m.SetRcode(req, rcode)
	m.Answer = nil
	return m
}

// MirrorToRequest rewrites resp's id and question to match req, and sets
// qr=1.
func MirrorToRequest(resp, req *dns.Msg) {
	resp.Id = req.Id
	resp.Response = true
	resp.Question = req.Question
}

// QuestionName returns the normalized (lowercased, dot-terminated) name of
// m's single question, or "" if m has none.
func QuestionName(m *dns.Msg) string {
	if len(m.Question) == 0 {
		return ""
	}
	return Normalize(m.Question[0].Name)
}

// ClampAnswerTTLs clamps every answer-section record's TTL into [min,
// max]. Authority/additional sections, and OPT records wherever they
// appear, are left untouched.
func ClampAnswerTTLs(m *dns.Msg, min, max uint32) {
	for _, rr := range m.Answer {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		ttl := rr.Header().Ttl
		if ttl < min {
			ttl = min
		}
		if max > 0 && ttl > max {
			ttl = max
		}
		rr.Header().Ttl = ttl
	}
}

// MinAnswerTTL returns the minimum TTL across the answer section, and
// whether any answer record was present.
func MinAnswerTTL(m *dns.Msg) (uint32, bool) {
	var min uint32
	found := false
	for _, rr := range m.Answer {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		ttl := rr.Header().Ttl
		if !found || ttl < min {
			min = ttl
			found = true
		}
	}
	return min, found
}

// DecrementAnswerTTLs subtracts elapsed (seconds, floored at 0) from every
// answer-section TTL, used when serving a cache hit.
func DecrementAnswerTTLs(m *dns.Msg, elapsed uint32) {
	for _, rr := range m.Answer {
		if rr.Header().Rrtype == dns.TypeOPT {
			continue
		}
		h := rr.Header()
		if h.Ttl <= elapsed {
			h.Ttl = 0
		} else {
			h.Ttl -= elapsed
		}
	}
}
