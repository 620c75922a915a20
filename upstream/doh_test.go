package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func newTestQuery() *dns.Msg {
	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)
	req.Id = dns.Id()
	return req
}

func TestDoHClientExchangeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, dnsMessageContentType, r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		req := new(dns.Msg)
		require.NoError(t, req.Unpack(body))

		resp := new(dns.Msg)
		resp.SetReply(req)
		resp.Answer = []dns.RR{&dns.A{Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}}}

		wire, err := resp.Pack()
		require.NoError(t, err)

		w.Header().Set("Content-Type", dnsMessageContentType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(wire)
	}))
	defer srv.Close()

	c := &DoHClient{URL: srv.URL, Timeout: time.Second}
	resp, err := c.Exchange(context.Background(), newTestQuery())

	require.NoError(t, err)
	require.Len(t, resp.Answer, 1)
}

func TestDoHClientNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &DoHClient{URL: srv.URL, Timeout: time.Second}
	_, err := c.Exchange(context.Background(), newTestQuery())
	require.Error(t, err)
}

func TestDoHClientUnexpectedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not dns"))
	}))
	defer srv.Close()

	c := &DoHClient{URL: srv.URL, Timeout: time.Second}
	_, err := c.Exchange(context.Background(), newTestQuery())
	require.Error(t, err)
}

func TestDoHClientReusesHTTPClient(t *testing.T) {
	c := &DoHClient{URL: "https://example.invalid/dns-query"}
	first, err := c.newHTTPClient()
	require.NoError(t, err)
	second, err := c.newHTTPClient()
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestDoHClientString(t *testing.T) {
	c := &DoHClient{URL: "https://doh.example/dns-query"}
	require.Equal(t, "doh:https://doh.example/dns-query", c.String())
}
