// Package providers implements CleanDNS's large-list lookups: domain_set,
// ip_set, and geosite.
//
// DomainSet's trie-over-reversed-labels shape walks a query name
// backwards (TLD first) through a map-keyed trie without allocating a
// reversed copy of the name.
package providers

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cleandns/cleandns/dnsmsg"
)

// RuleKind is the matching discipline for one domain_set line:
// "[prefix:]pattern" where prefix is one of full, domain, keyword, regex,
// defaulting to domain when omitted.
type RuleKind int

const (
	// KindDomain is suffix match, inclusive of the exact name (the
	// default when no prefix is given).
	KindDomain RuleKind = iota
	KindFull
	KindKeyword
	KindRegex
)

type trieNode struct {
	children map[string]*trieNode
	terminal bool // an exact/"full" match ends here
	suffix   bool // a "domain:" match ends here (this node and everything below)
}

// DomainSet is a trie over reversed labels supporting exact, suffix, and
// keyword rules loaded from text files.
type DomainSet struct {
	root     *trieNode
	keywords []string
	regexes  []*regexp.Regexp
}

// NewDomainSet returns an empty, ready-to-populate DomainSet.
func NewDomainSet() *DomainSet {
	return &DomainSet{root: &trieNode{}}
}

// LoadDomainSetFiles loads and merges one or more domain_set files.
// Loading failure is fatal at graph construction.
func LoadDomainSetFiles(paths []string) (*DomainSet, error) {
	ds := NewDomainSet()
	for _, path := range paths {
		if err := ds.loadFile(path); err != nil {
			return nil, fmt.Errorf("domain_set %s: %w", path, err)
		}
	}
	return ds, nil
}

func (ds *DomainSet) loadFile(path string) error {
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
		if err := ds.AddLine(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// AddLine parses one "[prefix:]pattern" line and inserts it.
func (ds *DomainSet) AddLine(line string) error {
	kind := KindDomain
	pattern := line

	if idx := strings.Index(line, ":"); idx >= 0 {
		switch line[:idx] {
		case "full":
			kind, pattern = KindFull, line[idx+1:]
		case "domain":
			kind, pattern = KindDomain, line[idx+1:]
		case "keyword":
			kind, pattern = KindKeyword, line[idx+1:]
		case "regex":
			kind, pattern = KindRegex, line[idx+1:]
		}
	}

	return ds.Add(pattern, kind)
}

// Add inserts pattern with the given rule kind.
func (ds *DomainSet) Add(pattern string, kind RuleKind) error {
	switch kind {
	case KindKeyword:
		ds.keywords = append(ds.keywords, strings.ToLower(pattern))
		return nil
	case KindRegex:
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		ds.regexes = append(ds.regexes, re)
		return nil
	}

	name := dnsmsg.Normalize(pattern)
	labels := splitLabels(name)

	node := ds.root
	for i := len(labels) - 1; i >= 0; i-- {
		label := labels[i]
		if node.children == nil {
			node.children = make(map[string]*trieNode)
		}
		next, ok := node.children[label]
		if !ok {
			next = &trieNode{}
			node.children[label] = next
		}
		node = next
	}

	if kind == KindFull {
		node.terminal = true
	} else {
		node.suffix = true
	}
	return nil
}

// splitLabels splits a dot-terminated, lowercased name into labels,
// dropping the trailing empty label produced by the terminating dot.
func splitLabels(name string) []string {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return nil
	}
	return strings.Split(name, ".")
}

// Contains reports whether name matches any rule in the set. name is
// normalized (lowercased, dot-terminated) here, so callers may pass a
// query name in whatever case it arrived in on the wire.
func (ds *DomainSet) Contains(name string) bool {
	name = dnsmsg.Normalize(name)
	if ds.matchTrie(name) {
		return true
	}
	for _, kw := range ds.keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	for _, re := range ds.regexes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (ds *DomainSet) matchTrie(name string) bool {
	labels := splitLabels(name)
	node := ds.root
	for i := len(labels) - 1; i >= 0; i-- {
		next, ok := node.children[labels[i]]
		if !ok {
			return false
		}
		node = next
		if node.suffix {
			return true
		}
	}
	return node.terminal
}
