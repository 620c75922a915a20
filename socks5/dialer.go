package socks5

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// contextDialerAdapter lets a plain proxy.Dialer (no context support) be
// used where a proxyContextDialer is expected, since cancellation is
// best-effort for the synchronous SOCKS5 handshake.
type contextDialerAdapter struct {
	d proxy.Dialer
}

func (a contextDialerAdapter) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := a.d.Dial(network, addr)
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.conn, r.err
	}
}

func newSocks5ContextDialer(proxyAddr string) (proxyContextDialer, error) {
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("socks5: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return contextDialerFunc(cd.DialContext), nil
	}
	return contextDialerAdapter{d: d}, nil
}

type contextDialerFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func (f contextDialerFunc) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return f(ctx, network, addr)
}
