package cache

import (
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestWaitUnblocksAfterFillerEndFill(t *testing.T) {
	c := New(Config{Size: 10})
	key := Key(dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET})

	already := c.BeginFill(key)
	require.False(t, already, "first caller becomes the filler")

	done := make(chan struct{})
	go func() {
		already := c.BeginFill(key)
		require.True(t, already, "second caller sees the filler already in flight")
		c.Wait(key)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("waiter should not unblock before the filler calls EndFill")
	case <-time.After(20 * time.Millisecond):
	}

	c.EndFill(key)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock after the filler's EndFill")
	}
}

func successMsg(name string, ttl uint32) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	m.Rcode = dns.RcodeSuccess
	m.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   []byte{93, 184, 216, 34},
	}}
	return m
}

func TestStoreAndLookupHit(t *testing.T) {
	c := New(Config{Size: 10})
	q := dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	now := time.Now()

	c.Store(q, successMsg(q.Name, 300), now)

	resp, ok := c.Lookup(q, now.Add(10*time.Second))
	require.True(t, ok)
	require.Len(t, resp.Answer, 1)
	require.EqualValues(t, 290, resp.Answer[0].Header().Ttl)
}

func TestLookupMiss(t *testing.T) {
	c := New(Config{Size: 10})
	q := dns.Question{Name: "nowhere.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	_, ok := c.Lookup(q, time.Now())
	require.False(t, ok)
}

func TestEntryExpires(t *testing.T) {
	c := New(Config{Size: 10, MinTTL: time.Second})
	q := dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	now := time.Now()
	c.Store(q, successMsg(q.Name, 1), now)

	_, ok := c.Lookup(q, now.Add(2*time.Second))
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestNXDomainUsesNegativeTTL(t *testing.T) {
	c := New(Config{Size: 10, NegativeTTL: 5 * time.Second})
	q := dns.Question{Name: "absent.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	m := new(dns.Msg)
	m.SetQuestion(q.Name, dns.TypeA)
	m.Rcode = dns.RcodeNameError

	now := time.Now()
	c.Store(q, m, now)

	_, ok := c.Lookup(q, now.Add(4*time.Second))
	require.True(t, ok)

	_, ok = c.Lookup(q, now.Add(6*time.Second))
	require.False(t, ok)
}

func TestServFailNotCached(t *testing.T) {
	c := New(Config{Size: 10})
	q := dns.Question{Name: "broken.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	m := new(dns.Msg)
	m.SetQuestion(q.Name, dns.TypeA)
	m.Rcode = dns.RcodeServerFailure

	c.Store(q, m, time.Now())
	require.Equal(t, 0, c.Len())
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(Config{Size: 2})
	now := time.Now()

	qa := dns.Question{Name: "a.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	qb := dns.Question{Name: "b.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}
	qc := dns.Question{Name: "c.test.", Qtype: dns.TypeA, Qclass: dns.ClassINET}

	c.Store(qa, successMsg(qa.Name, 300), now)
	c.Store(qb, successMsg(qb.Name, 300), now)

	// Touch a so it's most-recently-used; b becomes the eviction target.
	_, _ = c.Lookup(qa, now)
	c.Store(qc, successMsg(qc.Name, 300), now)

	require.Equal(t, 2, c.Len())
	_, ok := c.Lookup(qb, now)
	require.False(t, ok)
	_, ok = c.Lookup(qa, now)
	require.True(t, ok)
	_, ok = c.Lookup(qc, now)
	require.True(t, ok)
}

func TestBeginFillSingleFlight(t *testing.T) {
	c := New(Config{Size: 10})
	key := Key(dns.Question{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET})

	already := c.BeginFill(key)
	require.False(t, already)

	already = c.BeginFill(key)
	require.True(t, already)

	c.EndFill(key)
	c.EndFill(key)
}
