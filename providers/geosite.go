package providers

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

// Geosite loads one country/category list out of a v2fly
// protobuf-serialized domain list bundle, indexing it into the same
// DomainSet domain_set uses.
//
// The wire format is decoded directly with
// google.golang.org/protobuf/encoding/protowire rather than generated
// message types; see DESIGN.md for why.
//
// v2fly's GeoSiteList schema:
//
//	message Domain {
//	  enum Type { Plain = 0; Regex = 1; RootDomain = 2; Full = 3; }
//	  Type type = 1;
//	  string value = 2;
//	}
//	message GeoSite { string country_code = 1; repeated Domain domain = 2; }
//	message GeoSiteList { repeated GeoSite entry = 1; }
const (
	fieldGeoSiteListEntry = 1

	fieldGeoSiteCountryCode = 1
	fieldGeoSiteDomain      = 2

	fieldDomainType  = 1
	fieldDomainValue = 2

	domainTypePlain      = 0
	domainTypeRegex      = 1
	domainTypeRootDomain = 2
	domainTypeFull       = 3
)

// LoadGeosite reads a v2fly geosite file and indexes the list named by
// code (case-insensitive) into a DomainSet, reusing the same matching
// engine domain_set uses. The v2fly domain-type enum maps directly onto
// domain_set's full/domain/regex/keyword rule kinds.
func LoadGeosite(path, code string) (*DomainSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("geosite %s: %w", path, err)
	}

	code = strings.ToUpper(code)
	ds := NewDomainSet()
	found := false

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("geosite %s: malformed tag", path)
		}
		data = data[n:]

		if num != fieldGeoSiteListEntry || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("geosite %s: malformed field", path)
			}
			data = data[n:]
			continue
		}

		entry, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("geosite %s: malformed entry", path)
		}
		data = data[n:]

		countryCode, domains, err := parseGeoSite(entry)
		if err != nil {
			return nil, fmt.Errorf("geosite %s: %w", path, err)
		}
		if strings.ToUpper(countryCode) != code {
			continue
		}
		found = true
		for _, d := range domains {
			if err := addGeositeDomain(ds, d); err != nil {
				return nil, fmt.Errorf("geosite %s entry %s: %w", path, countryCode, err)
			}
		}
	}

	if !found {
		return nil, fmt.Errorf("geosite %s: code %q not found", path, code)
	}
	return ds, nil
}

type geositeDomain struct {
	typ   uint64
	value string
}

func parseGeoSite(b []byte) (countryCode string, domains []geositeDomain, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("malformed GeoSite tag")
		}
		b = b[n:]

		switch {
		case num == fieldGeoSiteCountryCode && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("malformed country_code")
			}
			countryCode = string(v)
			b = b[n:]
		case num == fieldGeoSiteDomain && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("malformed domain entry")
			}
			b = b[n:]
			d, err := parseDomain(v)
			if err != nil {
				return "", nil, err
			}
			domains = append(domains, d)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("malformed GeoSite field")
			}
			b = b[n:]
		}
	}
	return countryCode, domains, nil
}

func parseDomain(b []byte) (geositeDomain, error) {
	var d geositeDomain
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("malformed Domain tag")
		}
		b = b[n:]

		switch {
		case num == fieldDomainType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return d, fmt.Errorf("malformed domain type")
			}
			d.typ = v
			b = b[n:]
		case num == fieldDomainValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("malformed domain value")
			}
			d.value = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("malformed Domain field")
			}
			b = b[n:]
		}
	}
	return d, nil
}

func addGeositeDomain(ds *DomainSet, d geositeDomain) error {
	switch d.typ {
	case domainTypeFull:
		return ds.Add(d.value, KindFull)
	case domainTypeRootDomain:
		return ds.Add(d.value, KindDomain)
	case domainTypeRegex:
		return ds.Add(d.value, KindRegex)
	default: // domainTypePlain: substring match, closest analogue is keyword
		return ds.Add(d.value, KindKeyword)
	}
}
