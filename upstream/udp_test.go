package upstream

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// startUDPServer runs handle for every datagram received on a fresh local
// UDP socket until the test cleans it up, returning the socket's address.
func startUDPServer(t *testing.T, handle func(*dns.Msg) *dns.Msg) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req := new(dns.Msg)
			if err := req.Unpack(buf[:n]); err != nil {
				continue
			}
			resp := handle(req)
			if resp == nil {
				continue
			}
			wire, err := resp.Pack()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(wire, addr)
		}
	}()
	return conn.LocalAddr().String()
}

func TestUDPClientExchangeSuccess(t *testing.T) {
	addr := startUDPServer(t, func(req *dns.Msg) *dns.Msg {
		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}, A: net.IPv4(1, 2, 3, 4)}}
		return resp
	})

	c := &UDPClient{Addr: addr, Timeout: time.Second}
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	resp, err := c.Exchange(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)
}

func TestUDPClientDropsMismatchedTransactionID(t *testing.T) {
	addr := startUDPServer(t, func(req *dns.Msg) *dns.Msg {
		stale := new(dns.Msg)
		stale.SetReply(req)
		stale.Id = req.Id + 1 // simulate a stray reply to a previous query
		go func() {
			// No real answer follows: this goroutine only sleeps, so
			// the client must discard the stale reply and time out.
			time.Sleep(20 * time.Millisecond)
		}()
		return stale
	})

	c := &UDPClient{Addr: addr, Timeout: 100 * time.Millisecond}
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	_, err := c.Exchange(context.Background(), req)
	require.Error(t, err, "a stale reply followed by no correct one should time out, not be accepted")
}

func TestUDPClientTimesOutWithNoListener(t *testing.T) {
	c := &UDPClient{Addr: "127.0.0.1:1", Timeout: 50 * time.Millisecond}
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	_, err := c.Exchange(context.Background(), req)
	require.Error(t, err)
}

func TestUDPClientString(t *testing.T) {
	c := &UDPClient{Addr: "9.9.9.9:53"}
	require.Equal(t, "udp:9.9.9.9:53", c.String())
}
