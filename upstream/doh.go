package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/time/rate"

	"github.com/cleandns/cleandns/socks5"
)

const dnsMessageContentType = "application/dns-message"

// DoHClient forwards over DNS-over-HTTPS, RFC 8484. The request/response
// shape (POST with an application/dns-message body) mirrors a DoH
// server's own wire handling, read from the client side instead.
type DoHClient struct {
	URL     string
	Timeout time.Duration
	Socks5  string // proxy "host:port", empty if direct

	// DialLimiter, if set, is shared across every DoHClient in a `forward`
	// instance and is waited on before every request, capping the rate at
	// which that instance starts DoH requests (and so any TLS dials they
	// open), keeping a large `concurrent` setting from fanning out
	// unbounded bursts against the same or different DoH endpoints.
	DialLimiter *rate.Limiter

	client *http.Client
}

// String identifies this client as the upstream that answered a query,
// for stats/logging purposes.
func (c *DoHClient) String() string { return "doh:" + c.URL }

// newHTTPClient builds (and caches) the *http.Client for this DoH
// upstream, wiring in a SOCKS5 CONNECT dialer when configured: the TCP
// connection to the DoH endpoint is established through the proxy using
// the CONNECT command.
func (c *DoHClient) newHTTPClient() (*http.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	transport := &http.Transport{
		ForceAttemptHTTP2: true,
	}

	if c.Socks5 != "" {
		dialer, err := socks5.NewDialer(c.Socks5)
		if err != nil {
			return nil, fmt.Errorf("upstream doh: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		}
	}

	c.client = &http.Client{Transport: transport}
	return c.client, nil
}

// Exchange POSTs the wire-encoded query and decodes a wire-encoded
// response.
func (c *DoHClient) Exchange(ctx context.Context, req *dns.Msg) (*dns.Msg, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	wire, err := req.Pack()
	if err != nil {
		return nil, fmt.Errorf("upstream doh: pack query: %w", err)
	}

	if c.DialLimiter != nil {
		if err := c.DialLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("upstream doh: dial limiter: %w", err)
		}
	}

	client, err := c.newHTTPClient()
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(wire))
	if err != nil {
		return nil, fmt.Errorf("upstream doh: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", dnsMessageContentType)
	httpReq.Header.Set("Accept", dnsMessageContentType)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream doh: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream doh: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != dnsMessageContentType {
		return nil, fmt.Errorf("upstream doh: unexpected content-type %q", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, fmt.Errorf("upstream doh: read body: %w", err)
	}

	out := new(dns.Msg)
	if err := out.Unpack(body); err != nil {
		return nil, fmt.Errorf("upstream doh: unpack response: %w", err)
	}
	out.Id = req.Id
	return out, nil
}
