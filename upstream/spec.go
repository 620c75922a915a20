// Package upstream implements single-shot transport of one query to one
// upstream resolver, and the concurrent racing pool `forward` dispatches
// through.
package upstream

import (
	"context"
	"time"

	"github.com/miekg/dns"
)

// Kind tags which transport a Spec uses.
type Kind int

const (
	KindUDP Kind = iota
	KindDoH
	KindSystem
)

// Spec is a tagged upstream value.
type Spec struct {
	Kind Kind

	// Addr is the "host:port" for KindUDP.
	Addr string

	// URL is the DoH endpoint for KindDoH.
	URL string

	// Socks5Addr, if non-empty, tunnels this upstream's transport
	// through a SOCKS5 proxy.
	Socks5Addr string
}

// DefaultDispatchTimeout is the per-upstream deadline used when a
// client's Timeout field is zero. The `forward` plugin has no timeout
// option and builds its clients with Timeout unset, so its dispatches
// always use this value.
const DefaultDispatchTimeout = 5 * time.Second

// Client is a single-shot transport: send req, return the upstream's
// response within ctx's deadline, or an error. The response may carry
// any rcode; Pool decides whether it is acceptable.
// String identifies the client for stats/logging, naming which
// upstream answered a race.
type Client interface {
	Exchange(ctx context.Context, req *dns.Msg) (*dns.Msg, error)
	String() string
}
