package upstream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/cleandns/cleandns/socks5"
)

// UDPClient forwards over classical UDP. A forwarding middleware would
// normally exchange over UDP via dns.Exchange; this type can't, because
// it needs to route through an optional SOCKS5 UDP ASSOCIATE tunnel and
// enforce a fresh per-dispatch transaction id.
type UDPClient struct {
	Addr    string
	Timeout time.Duration
	Socks5  string // proxy "host:port", empty if direct
}

// String identifies this client as the upstream that answered a query,
// for stats/logging purposes.
func (c *UDPClient) String() string { return "udp:" + c.Addr }

// Exchange sends req to the upstream and returns its reply. A fresh
// transaction id is assigned to the outgoing query. On a direct
// connection, replies whose id does not match are dropped and the wait
// continues until the deadline. Through a SOCKS5 association only the
// first reply datagram is read, and a mismatched id fails the exchange.
func (c *UDPClient) Exchange(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until < timeout {
			timeout = until
		}
	}
	deadline := time.Now().Add(timeout)

	out := req.Copy()
	out.Id = dns.Id()

	wire, err := out.Pack()
	if err != nil {
		return nil, fmt.Errorf("upstream udp: pack query: %w", err)
	}

	var raw []byte
	if c.Socks5 != "" {
		raw, err = c.exchangeViaSocks5(wire, deadline)
	} else {
		raw, err = c.exchangeDirect(wire, deadline, out.Id)
	}
	if err != nil {
		return nil, err
	}

	resp := new(dns.Msg)
	if err := resp.Unpack(raw); err != nil {
		return nil, fmt.Errorf("upstream udp: unpack response: %w", err)
	}
	if resp.Id != out.Id {
		return nil, fmt.Errorf("upstream udp: response id mismatch")
	}
	return resp, nil
}

func (c *UDPClient) exchangeDirect(wire []byte, deadline time.Time, wantID uint16) ([]byte, error) {
	conn, err := net.Dial("udp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("upstream udp: dial: %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.Write(wire); err != nil {
		return nil, fmt.Errorf("upstream udp: write: %w", err)
	}

	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("upstream udp: read: %w", err)
		}
		if n < 2 {
			continue
		}
		gotID := uint16(buf[0])<<8 | uint16(buf[1])
		if gotID != wantID {
			continue // mismatched id: keep waiting until deadline
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out, nil
	}
}

func (c *UDPClient) exchangeViaSocks5(wire []byte, deadline time.Time) ([]byte, error) {
	sess, err := socks5.Associate(c.Socks5, c.Addr)
	if err != nil {
		return nil, fmt.Errorf("upstream udp: socks5 associate: %w", err)
	}
	defer sess.Close()

	return sess.Exchange(wire, deadline)
}
