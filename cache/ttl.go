package cache

import (
	"time"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/dnsmsg"
)

// Default bounds: answers are floored at a configurable min (default
// 5s) and capped at a configurable max (default 1h); NXDOMAIN entries
// are cached with a short negative TTL (default 30s).
const (
	DefaultMinTTL      = 5 * time.Second
	DefaultMaxTTL      = time.Hour
	DefaultNegativeTTL = 30 * time.Second
)

// minAnswerTTL returns the smallest TTL among msg's answer records. It
// scans only the Answer section: it is only consulted for positive
// answers with at least one record (NXDOMAIN entries use the negative
// TTL instead), never bare referrals or signed data, so there's nothing
// to learn from Authority/Additional or RRSIG expiration.
func minAnswerTTL(msg *dns.Msg) time.Duration {
	ttl, found := dnsmsg.MinAnswerTTL(msg)
	if !found {
		return DefaultMaxTTL
	}
	return time.Duration(ttl) * time.Second
}

// effectiveTTL clamps d to [min, max].
func effectiveTTL(d, min, max time.Duration) time.Duration {
	if d < min {
		return min
	}
	if d > max {
		return max
	}
	return d
}
