package cache

import "github.com/miekg/dns"

// responseType classifies a response for caching purposes: a cacheable
// success, a cacheable negative (NXDOMAIN), or anything else, which is
// never cached.
type responseType int

const (
	typeUncacheable responseType = iota
	typeSuccess
	typeNXDomain
)

func classify(msg *dns.Msg) responseType {
	switch msg.Rcode {
	case dns.RcodeSuccess:
		if len(msg.Answer) > 0 {
			return typeSuccess
		}
		return typeUncacheable
	case dns.RcodeNameError:
		return typeNXDomain
	default:
		return typeUncacheable
	}
}
