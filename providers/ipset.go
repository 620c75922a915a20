package providers

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yl2chen/cidranger"
)

// IPSet is an ordered collection of CIDRs queried by longest-prefix
// containment, covering IPv4 and IPv6, built on the same cidranger.Ranger
// an access-list middleware would use for client-IP checks, generalized
// here into a reusable, file-loaded provider consulted by `matcher`.
type IPSet struct {
	ranger cidranger.Ranger
}

// NewIPSet returns an empty, ready-to-populate IPSet.
func NewIPSet() *IPSet {
	return &IPSet{ranger: cidranger.NewPCTrieRanger()}
}

// LoadIPSetFiles loads and merges one or more ip_set files. Loading
// failure is fatal at graph construction.
func LoadIPSetFiles(paths []string) (*IPSet, error) {
	is := NewIPSet()
	for _, path := range paths {
		if err := is.loadFile(path); err != nil {
			return nil, fmt.Errorf("ip_set %s: %w", path, err)
		}
	}
	return is, nil
}

func (is *IPSet) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := is.Add(line); err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
	}
	return sc.Err()
}

// Add inserts one CIDR or bare IP (treated as a host route) line.
func (is *IPSet) Add(s string) error {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return fmt.Errorf("invalid ip %q", s)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		s = fmt.Sprintf("%s/%d", s, bits)
	}

	_, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return err
	}
	return is.ranger.Insert(cidranger.NewBasicRangerEntry(*ipnet))
}

// Contains reports whether addr is covered by any CIDR in the set.
func (is *IPSet) Contains(addr net.IP) bool {
	ok, err := is.ranger.Contains(addr)
	if err != nil {
		return false
	}
	return ok
}
