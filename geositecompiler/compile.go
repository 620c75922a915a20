// Package geositecompiler implements the `make-geosite` CLI subcommand.
// It compiles a v2fly "domain-list-community" style source tree — one
// text file per category, one pattern per line — into the same
// protobuf-wire GeoSiteList bundle providers.LoadGeosite decodes
// (providers/geosite.go documents the schema this mirrors).
package geositecompiler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Domain type tags, matching the v2fly GeoSiteList.Domain.Type enum
// (providers/geosite.go: Plain=0, Regex=1, RootDomain=2, Full=3).
const (
	domainTypePlain      = 0
	domainTypeRegex      = 1
	domainTypeRootDomain = 2
	domainTypeFull       = 3
)

const (
	fieldGeoSiteListEntry = 1

	fieldGeoSiteCountryCode = 1
	fieldGeoSiteDomain      = 2

	fieldDomainType  = 1
	fieldDomainValue = 2
)

// Compile reads every regular file directly under srcDir as one category
// (the uppercased file name is the geosite code) and writes the encoded
// GeoSiteList bundle to outPath.
func Compile(srcDir, outPath string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("geositecompiler: read %s: %w", srcDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		path := filepath.Join(srcDir, name)
		domains, err := loadCategoryFile(path)
		if err != nil {
			return err
		}
		if len(domains) == 0 {
			continue
		}
		entry := encodeGeoSite(strings.ToUpper(name), domains)
		out = protowire.AppendTag(out, fieldGeoSiteListEntry, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("geositecompiler: write %s: %w", outPath, err)
	}
	return nil
}

type domainEntry struct {
	typ   uint64
	value string
}

func loadCategoryFile(path string) ([]domainEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geositecompiler: open %s: %w", path, err)
	}
	defer f.Close()

	var domains []domainEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domains = append(domains, parseSourceLine(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("geositecompiler: scan %s: %w", path, err)
	}
	return domains, nil
}

// parseSourceLine accepts the v2fly source prefixes full:/regexp:/keyword:,
// defaulting to a root-domain (suffix) match.
func parseSourceLine(line string) domainEntry {
	if idx := strings.Index(line, ":"); idx >= 0 {
		switch line[:idx] {
		case "full":
			return domainEntry{typ: domainTypeFull, value: line[idx+1:]}
		case "regexp", "regex":
			return domainEntry{typ: domainTypeRegex, value: line[idx+1:]}
		case "keyword":
			return domainEntry{typ: domainTypePlain, value: line[idx+1:]}
		case "domain":
			return domainEntry{typ: domainTypeRootDomain, value: line[idx+1:]}
		}
	}
	return domainEntry{typ: domainTypeRootDomain, value: line}
}

func encodeGeoSite(code string, domains []domainEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldGeoSiteCountryCode, protowire.BytesType)
	b = protowire.AppendString(b, code)

	for _, d := range domains {
		entry := encodeDomain(d)
		b = protowire.AppendTag(b, fieldGeoSiteDomain, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func encodeDomain(d domainEntry) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDomainType, protowire.VarintType)
	b = protowire.AppendVarint(b, d.typ)
	b = protowire.AppendTag(b, fieldDomainValue, protowire.BytesType)
	b = protowire.AppendString(b, d.value)
	return b
}
