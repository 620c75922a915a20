package cache

import (
	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"
)

// Key hashes a question into the cache's lookup key: lowercased qname,
// qtype, qclass. Unlike a DNSSEC-aware cache key, this has no CD-bit
// dimension, since this cache has no DNSSEC-aware component to key on.
func Key(q dns.Question) uint64 {
	buf := make([]byte, 0, 4+len(q.Name))
	buf = append(buf, byte(q.Qclass>>8), byte(q.Qclass))
	buf = append(buf, byte(q.Qtype>>8), byte(q.Qtype))
	for i := 0; i < len(q.Name); i++ {
		c := q.Name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf = append(buf, c)
	}
	return xxhash.Sum64(buf)
}
