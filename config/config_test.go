package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/cleandns/cleandns/plugingraph"
)

const sampleYAML = `
bind: "127.0.0.1:5300"
api_port: 8099
entry: main
plugins:
  - tag: main
    type: sequence
    args:
      exec: [hosts, answer]
  - tag: hosts
    type: hosts
    args:
      hosts:
        router.lan: ["192.168.1.1"]
  - tag: answer
    type: reject
    args:
      rcode: 3
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cleandns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:5300", cfg.Bind)
	require.Equal(t, 8099, cfg.APIPort)
	require.Equal(t, "main", cfg.Entry)
	require.Len(t, cfg.Plugins, 3)
}

func TestLoadDefaultsAPIPort(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
bind: ":53"
entry: main
plugins:
  - tag: main
    type: return
`))
	require.NoError(t, err)
	require.Equal(t, DefaultAPIPort, cfg.APIPort)
}

func TestLoadRequiresBindAndEntry(t *testing.T) {
	_, err := Load(writeTemp(t, "entry: main\n"))
	require.Error(t, err)

	_, err = Load(writeTemp(t, "bind: \":53\"\n"))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildGraphResolvesSequenceAndHostsAndReject(t *testing.T) {
	cfg, err := Load(writeTemp(t, sampleYAML))
	require.NoError(t, err)

	graph, agg, err := cfg.BuildGraph()
	require.NoError(t, err)
	require.NotNil(t, agg)

	qc := plugingraph.New(dns.Question{Name: "router.lan.", Qtype: dns.TypeA, Qclass: dns.ClassINET}, nil, agg)
	graph.Entry().Run(context.Background(), qc)
	require.NotNil(t, qc.Response)
	require.Len(t, qc.Response.Answer, 1)
}

func TestBuildGraphFailsOnUnknownTag(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
bind: ":53"
entry: main
plugins:
  - tag: main
    type: sequence
    args:
      exec: [missing]
`))
	require.NoError(t, err)

	_, _, err = cfg.BuildGraph()
	require.Error(t, err)
}

func TestBuildGraphFailsOnUnknownEntry(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
bind: ":53"
entry: nope
plugins:
  - tag: main
    type: return
`))
	require.NoError(t, err)

	_, _, err = cfg.BuildGraph()
	require.Error(t, err)
}

func TestBuildGraphForwardParsesUpstreams(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
bind: ":53"
entry: fwd
plugins:
  - tag: fwd
    type: forward
    args:
      concurrent: 1
      upstreams:
        - kind: udp
          addr: "1.1.1.1:53"
        - kind: doh
          url: "https://dns.example/dns-query"
`))
	require.NoError(t, err)

	_, _, err = cfg.BuildGraph()
	require.NoError(t, err)
}

func TestBuildGraphRejectsUnknownPluginType(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
bind: ":53"
entry: main
plugins:
  - tag: main
    type: not_a_real_plugin
`))
	require.NoError(t, err)

	_, _, err = cfg.BuildGraph()
	require.Error(t, err)
}
