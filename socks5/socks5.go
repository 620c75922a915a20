// Package socks5 provides the TCP CONNECT and UDP ASSOCIATE tunneling
// `forward` uses to reach upstreams through a SOCKS5 proxy.
//
// TCP CONNECT (used by the DoH transport) is built on
// golang.org/x/net/proxy, the SOCKS5 dialer most of the ecosystem reaches
// for. golang.org/x/net/proxy has no UDP ASSOCIATE support, so that half
// (RFC 1928 §4-7) is implemented here directly against the wire protocol.
package socks5

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// Dialer establishes TCP connections through a SOCKS5 proxy, with
// username/password authentication disabled.
type Dialer struct {
	d proxyContextDialer
}

type proxyContextDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewDialer returns a Dialer tunneling through proxyAddr.
func NewDialer(proxyAddr string) (*Dialer, error) {
	cd, err := newSocks5ContextDialer(proxyAddr)
	if err != nil {
		return nil, err
	}
	return &Dialer{d: cd}, nil
}

// DialContext opens a TCP connection to addr via the CONNECT command.
func (d *Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	return d.d.DialContext(ctx, network, addr)
}

// Session is a SOCKS5 UDP ASSOCIATE session, opened by Associate, for
// relaying datagrams to one target through a proxy. If the proxy does
// not support UDP ASSOCIATE, Associate fails. A Session must be closed
// by the caller; closing it tears down the control TCP connection that
// keeps the association alive per RFC 1928 §6.
type Session struct {
	ctrl   net.Conn
	relay  *net.UDPConn
	target *net.UDPAddr
}

// Close releases the control connection and the UDP relay socket.
func (s *Session) Close() error {
	s.relay.Close()
	return s.ctrl.Close()
}

// Exchange sends req to target through the association and returns the
// first reply datagram received within deadline.
func (s *Session) Exchange(req []byte, deadline time.Time) ([]byte, error) {
	packet, err := encapsulateUDP(s.target, req)
	if err != nil {
		return nil, err
	}
	if _, err := s.relay.Write(packet); err != nil {
		return nil, err
	}

	if err := s.relay.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := s.relay.Read(buf)
	if err != nil {
		return nil, err
	}
	_, payload, err := decapsulateUDP(buf[:n])
	return payload, err
}

// Associate opens a UDP ASSOCIATE session through proxyAddr for
// datagrams ultimately destined for target.
func Associate(proxyAddr, target string) (*Session, error) {
	targetAddr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("socks5: resolve target: %w", err)
	}

	ctrl, err := net.DialTimeout("tcp", proxyAddr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("socks5: connect proxy: %w", err)
	}

	if err := handshakeNoAuth(ctrl); err != nil {
		ctrl.Close()
		return nil, err
	}

	relayAddr, err := requestUDPAssociate(ctrl)
	if err != nil {
		ctrl.Close()
		return nil, err
	}

	relay, err := net.DialUDP("udp", nil, relayAddr)
	if err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("socks5: dial relay: %w", err)
	}

	return &Session{ctrl: ctrl, relay: relay, target: targetAddr}, nil
}

const (
	socksVersion5   = 0x05
	authNone        = 0x00
	cmdConnect      = 0x01
	cmdUDPAssociate = 0x03
	atypIPv4        = 0x01
	atypDomain      = 0x03
	atypIPv6        = 0x04
)

func handshakeNoAuth(conn net.Conn) error {
	if _, err := conn.Write([]byte{socksVersion5, 1, authNone}); err != nil {
		return fmt.Errorf("socks5: greeting: %w", err)
	}
	reply := make([]byte, 2)
	if _, err := readFull(conn, reply); err != nil {
		return fmt.Errorf("socks5: greeting reply: %w", err)
	}
	if reply[0] != socksVersion5 {
		return errors.New("socks5: unexpected version in greeting reply")
	}
	if reply[1] != authNone {
		return errors.New("socks5: proxy requires unsupported authentication")
	}
	return nil
}

func requestUDPAssociate(conn net.Conn) (*net.UDPAddr, error) {
	req := []byte{socksVersion5, cmdUDPAssociate, 0x00, atypIPv4, 0, 0, 0, 0, 0, 0}
	if _, err := conn.Write(req); err != nil {
		return nil, fmt.Errorf("socks5: associate request: %w", err)
	}
	return readBindReply(conn)
}

func readBindReply(conn net.Conn) (*net.UDPAddr, error) {
	head := make([]byte, 4)
	if _, err := readFull(conn, head); err != nil {
		return nil, fmt.Errorf("socks5: reply header: %w", err)
	}
	if head[0] != socksVersion5 {
		return nil, errors.New("socks5: unexpected version in reply")
	}
	if head[1] != 0x00 {
		return nil, fmt.Errorf("socks5: command failed, reply code %d", head[1])
	}

	var ip net.IP
	switch head[3] {
	case atypIPv4:
		buf := make([]byte, 4)
		if _, err := readFull(conn, buf); err != nil {
			return nil, err
		}
		ip = net.IP(buf)
	case atypIPv6:
		buf := make([]byte, 16)
		if _, err := readFull(conn, buf); err != nil {
			return nil, err
		}
		ip = net.IP(buf)
	case atypDomain:
		lenBuf := make([]byte, 1)
		if _, err := readFull(conn, lenBuf); err != nil {
			return nil, err
		}
		buf := make([]byte, lenBuf[0])
		if _, err := readFull(conn, buf); err != nil {
			return nil, err
		}
		addrs, err := net.LookupIP(string(buf))
		if err != nil || len(addrs) == 0 {
			return nil, fmt.Errorf("socks5: resolve bound domain: %w", err)
		}
		ip = addrs[0]
	default:
		return nil, errors.New("socks5: unsupported address type in reply")
	}

	portBuf := make([]byte, 2)
	if _, err := readFull(conn, portBuf); err != nil {
		return nil, err
	}
	port := binary.BigEndian.Uint16(portBuf)

	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// encapsulateUDP wraps payload in the SOCKS5 UDP request header (RFC
// 1928 §7): RSV(2) FRAG(1) ATYP(1) DST.ADDR DST.PORT(2) DATA.
func encapsulateUDP(target *net.UDPAddr, payload []byte) ([]byte, error) {
	var header []byte
	if ip4 := target.IP.To4(); ip4 != nil {
		header = append([]byte{0, 0, 0, atypIPv4}, ip4...)
	} else if ip6 := target.IP.To16(); ip6 != nil {
		header = append([]byte{0, 0, 0, atypIPv6}, ip6...)
	} else {
		return nil, errors.New("socks5: invalid target address")
	}
	portBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(portBuf, uint16(target.Port))
	header = append(header, portBuf...)
	return append(header, payload...), nil
}

func decapsulateUDP(packet []byte) (*net.UDPAddr, []byte, error) {
	if len(packet) < 4 {
		return nil, nil, errors.New("socks5: short udp reply")
	}
	atyp := packet[3]
	rest := packet[4:]

	var ip net.IP
	switch atyp {
	case atypIPv4:
		if len(rest) < 4+2 {
			return nil, nil, errors.New("socks5: short udp reply (ipv4)")
		}
		ip = net.IP(rest[:4])
		rest = rest[4:]
	case atypIPv6:
		if len(rest) < 16+2 {
			return nil, nil, errors.New("socks5: short udp reply (ipv6)")
		}
		ip = net.IP(rest[:16])
		rest = rest[16:]
	default:
		return nil, nil, errors.New("socks5: unsupported udp reply address type")
	}

	port := binary.BigEndian.Uint16(rest[:2])
	return &net.UDPAddr{IP: ip, Port: int(port)}, rest[2:], nil
}
