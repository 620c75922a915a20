// Package config loads CleanDNS's YAML configuration and builds a
// *plugingraph.Graph from it, using gopkg.in/yaml.v3 for parsing.
//
// Building the graph is a two-pass process: every plugin node is
// constructed first (providers loaded eagerly), then every node
// implementing plugingraph.Resolver has ResolveTags called once the full
// tag->node mapping exists. Any failure at either pass is fatal at
// startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cleandns/cleandns/cache"
	"github.com/cleandns/cleandns/plugingraph"
	"github.com/cleandns/cleandns/processors"
	"github.com/cleandns/cleandns/providers"
	"github.com/cleandns/cleandns/stats"
	"github.com/cleandns/cleandns/upstream"
)

// DefaultAPIPort is used when api_port is unset or zero.
const DefaultAPIPort = 3000

// PluginConfig is one entry of the top-level `plugins` list.
type PluginConfig struct {
	Tag  string         `yaml:"tag"`
	Type string         `yaml:"type"`
	Args map[string]any `yaml:"args"`
}

// LogConfig is the optional top-level `log` field.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is CleanDNS's top-level YAML document.
type Config struct {
	Bind    string         `yaml:"bind"`
	APIPort int            `yaml:"api_port"`
	Entry   string         `yaml:"entry"`
	Log     LogConfig      `yaml:"log"`
	Plugins []PluginConfig `yaml:"plugins"`
}

// Load reads and parses the YAML document at path, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Bind == "" {
		return nil, fmt.Errorf("config: %s: bind is required", path)
	}
	if cfg.Entry == "" {
		return nil, fmt.Errorf("config: %s: entry is required", path)
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = DefaultAPIPort
	}
	return cfg, nil
}

// BuildGraph constructs every plugin node, resolves tag references, and
// returns the resulting graph alongside the statistics aggregator the
// `cache` plugin's cache-hit bookkeeping and the listener share.
func (c *Config) BuildGraph() (*plugingraph.Graph, *stats.Aggregator, error) {
	agg := stats.NewAggregator()

	nodes := make(map[string]plugingraph.Processor, len(c.Plugins))
	for _, pc := range c.Plugins {
		if pc.Tag == "" {
			return nil, nil, fmt.Errorf("config: plugin with empty tag (type %q)", pc.Type)
		}
		if _, dup := nodes[pc.Tag]; dup {
			return nil, nil, fmt.Errorf("config: duplicate plugin tag %q", pc.Tag)
		}

		node, err := buildNode(pc.Type, pc.Args)
		if err != nil {
			return nil, nil, fmt.Errorf("config: plugin %q (%s): %w", pc.Tag, pc.Type, err)
		}
		nodes[pc.Tag] = node
	}

	for tag, node := range nodes {
		r, ok := node.(plugingraph.Resolver)
		if !ok {
			continue
		}
		if err := r.ResolveTags(func(t string) (plugingraph.Processor, bool) {
			p, ok := nodes[t]
			return p, ok
		}); err != nil {
			return nil, nil, fmt.Errorf("config: plugin %q: %w", tag, err)
		}
	}

	graph, err := plugingraph.NewGraph(nodes, c.Entry)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	return graph, agg, nil
}

func buildNode(typ string, args map[string]any) (plugingraph.Processor, error) {
	switch typ {
	case "sequence":
		return processors.NewSequence(stringSlice(args, "exec")), nil
	case "if":
		return processors.NewIf(stringField(args, "if"), stringSlice(args, "exec"), stringSlice(args, "else_exec")), nil
	case "return":
		return &processors.Return{}, nil
	case "reject":
		return processors.NewReject(intField(args, "rcode", 0)), nil
	case "delay":
		return processors.NewDelay(intField(args, "ms", 0)), nil
	case "matcher":
		return processors.NewMatcher(stringSlice(args, "domain"), stringSlice(args, "client_ip")), nil
	case "domain_set":
		ds, err := providers.LoadDomainSetFiles(stringSlice(args, "files"))
		if err != nil {
			return nil, err
		}
		return &processors.DomainSetNode{DomainSet: ds}, nil
	case "geosite":
		ds, err := providers.LoadGeosite(stringField(args, "file"), stringField(args, "code"))
		if err != nil {
			return nil, err
		}
		return &processors.DomainSetNode{DomainSet: ds}, nil
	case "ip_set":
		is, err := providers.LoadIPSetFiles(stringSlice(args, "files"))
		if err != nil {
			return nil, err
		}
		return &processors.IPSetNode{IPSet: is}, nil
	case "hosts":
		return processors.NewHosts(stringSlice(args, "files"), stringMapStringSlice(args, "hosts"))
	case "ttl":
		return processors.NewTTL(uint32(intField(args, "min", 0)), uint32(intField(args, "max", 0))), nil
	case "forward":
		specs, err := upstreamSpecs(args)
		if err != nil {
			return nil, err
		}
		concurrent := intField(args, "concurrent", len(specs))
		return processors.NewForward(specs, concurrent), nil
	case "system":
		return processors.NewSystem(), nil
	case "cache":
		cfg := cache.Config{
			Size:        intField(args, "size", 0),
			MinTTL:      durationSecondsField(args, "min_ttl", 0),
			MaxTTL:      durationSecondsField(args, "max_ttl", 0),
			NegativeTTL: durationSecondsField(args, "negative_ttl", 0),
		}
		return processors.NewCache(cfg, stringSlice(args, "exec")), nil
	case "fallback":
		return processors.NewFallback(stringSlice(args, "primary"), stringSlice(args, "secondary")), nil
	default:
		return nil, fmt.Errorf("unknown plugin type %q", typ)
	}
}

func upstreamSpecs(args map[string]any) ([]upstream.Spec, error) {
	raw, _ := args["upstreams"].([]any)
	specs := make([]upstream.Spec, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("forward: upstreams[%d]: not a mapping", i)
		}
		kind := stringField(m, "kind")
		spec := upstream.Spec{Socks5Addr: stringField(m, "socks5")}
		switch kind {
		case "udp", "":
			spec.Kind = upstream.KindUDP
			spec.Addr = stringField(m, "addr")
			if spec.Addr == "" {
				return nil, fmt.Errorf("forward: upstreams[%d]: udp requires addr", i)
			}
		case "doh":
			spec.Kind = upstream.KindDoH
			spec.URL = stringField(m, "url")
			if spec.URL == "" {
				return nil, fmt.Errorf("forward: upstreams[%d]: doh requires url", i)
			}
		case "system":
			spec.Kind = upstream.KindSystem
		default:
			return nil, fmt.Errorf("forward: upstreams[%d]: unknown kind %q", i, kind)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("forward: upstreams must be non-empty")
	}
	return specs, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func durationSecondsField(m map[string]any, key string, def time.Duration) time.Duration {
	n := intField(m, key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func stringSlice(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMapStringSlice(m map[string]any, key string) map[string][]string {
	raw, _ := m[key].(map[string]any)
	out := make(map[string][]string, len(raw))
	for name, v := range raw {
		switch vv := v.(type) {
		case []any:
			ips := make([]string, 0, len(vv))
			for _, ip := range vv {
				if s, ok := ip.(string); ok {
					ips = append(ips, s)
				}
			}
			out[name] = ips
		case string:
			out[name] = []string{vv}
		}
	}
	return out
}
