package processors

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/cleandns/cleandns/dnsmsg"
	"github.com/cleandns/cleandns/plugingraph"
)

// domainMatcher is satisfied by any provider node queryable by name
// (DomainSetNode, and geosite nodes which are also DomainSetNode).
type domainMatcher interface {
	Contains(name string) bool
}

// ipMatcher is satisfied by IPSetNode.
type ipMatcher interface {
	Contains(ip net.IP) bool
}

// Matcher is a Condition testing the query name and/or client address
// against literal patterns and provider references, generalized from a
// pair of hand-rolled domain/IP dimensions into an explicit
// provider-reference pattern.
type Matcher struct {
	DomainPatterns   []string
	ClientIPPatterns []string

	domainLiterals []string
	domainRefs     []domainMatcher
	ipLiterals     []*net.IPNet
	ipRefs         []ipMatcher
}

// NewMatcher returns a Matcher over the given raw pattern lists. Each
// pattern is either a literal domain suffix / CIDR, or
// "provider:<tag>" naming a domain_set/ip_set/geosite node.
func NewMatcher(domainPatterns, clientIPPatterns []string) *Matcher {
	return &Matcher{DomainPatterns: domainPatterns, ClientIPPatterns: clientIPPatterns}
}

const providerPrefix = "provider:"

// ResolveTags implements plugingraph.Resolver.
func (m *Matcher) ResolveTags(lookup func(string) (plugingraph.Processor, bool)) error {
	for _, pattern := range m.DomainPatterns {
		if !strings.HasPrefix(pattern, providerPrefix) {
			m.domainLiterals = append(m.domainLiterals, dnsmsg.Normalize(pattern))
			continue
		}
		tag := strings.TrimPrefix(pattern, providerPrefix)
		p, ok := lookup(tag)
		if !ok {
			return fmt.Errorf("processors: matcher: provider tag %q not found", tag)
		}
		dm, ok := p.(domainMatcher)
		if !ok {
			return fmt.Errorf("processors: matcher: tag %q is not a domain provider", tag)
		}
		m.domainRefs = append(m.domainRefs, dm)
	}

	for _, pattern := range m.ClientIPPatterns {
		if !strings.HasPrefix(pattern, providerPrefix) {
			ipnet, err := parseIPOrCIDR(pattern)
			if err != nil {
				return fmt.Errorf("processors: matcher: client_ip %q: %w", pattern, err)
			}
			m.ipLiterals = append(m.ipLiterals, ipnet)
			continue
		}
		tag := strings.TrimPrefix(pattern, providerPrefix)
		p, ok := lookup(tag)
		if !ok {
			return fmt.Errorf("processors: matcher: provider tag %q not found", tag)
		}
		im, ok := p.(ipMatcher)
		if !ok {
			return fmt.Errorf("processors: matcher: tag %q is not an ip provider", tag)
		}
		m.ipRefs = append(m.ipRefs, im)
	}
	return nil
}

func parseIPOrCIDR(s string) (*net.IPNet, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("invalid ip %q", s)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		s = fmt.Sprintf("%s/%d", s, bits)
	}
	_, ipnet, err := net.ParseCIDR(s)
	return ipnet, err
}

// Check implements plugingraph.Condition. It returns true iff every
// declared dimension matches: empty dimensions are ignored, and the
// conjunction of non-empty dimensions is required.
func (m *Matcher) Check(ctx context.Context, qc *plugingraph.Context) bool {
	if len(m.DomainPatterns) > 0 && !m.matchesDomain(qc) {
		return false
	}
	if len(m.ClientIPPatterns) > 0 && !m.matchesClientIP(qc) {
		return false
	}
	return true
}

// Run implements plugingraph.Processor so Matcher can also appear
// directly inside an exec list; it has no side effect there.
func (m *Matcher) Run(context.Context, *plugingraph.Context) {}

func (m *Matcher) matchesDomain(qc *plugingraph.Context) bool {
	name := strings.TrimSuffix(qc.Question.Name, ".")
	for _, d := range m.domainLiterals {
		d = strings.TrimSuffix(d, ".")
		if name == d || strings.HasSuffix(name, "."+d) {
			return true
		}
	}
	for _, ref := range m.domainRefs {
		if ref.Contains(qc.Question.Name) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchesClientIP(qc *plugingraph.Context) bool {
	host, _, err := net.SplitHostPort(qc.ClientAddr.String())
	if err != nil {
		host = qc.ClientAddr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, ipnet := range m.ipLiterals {
		if ipnet.Contains(ip) {
			return true
		}
	}
	for _, ref := range m.ipRefs {
		if ref.Contains(ip) {
			return true
		}
	}
	return false
}
