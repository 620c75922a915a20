package processors

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestHostsInlineMatch(t *testing.T) {
	h, err := NewHosts(nil, map[string][]string{
		"router.lan": {"192.168.1.1"},
	})
	require.NoError(t, err)

	qc := newQC("router.lan.")
	h.Run(context.Background(), qc)

	require.True(t, qc.Abort)
	require.NotNil(t, qc.Response)
	require.Len(t, qc.Response.Answer, 1)
	a, ok := qc.Response.Answer[0].(*dns.A)
	require.True(t, ok)
	require.Equal(t, "192.168.1.1", a.A.String())
	require.Empty(t, qc.ResolvedVia, "a local hosts answer is not resolved via any upstream")
}

func TestHostsFileMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n10.0.0.5 box.lan\n"), 0o644))

	h, err := NewHosts([]string{path}, nil)
	require.NoError(t, err)

	qc := newQC("box.lan.")
	h.Run(context.Background(), qc)
	require.NotNil(t, qc.Response)
	require.Len(t, qc.Response.Answer, 1)
}

func TestHostsNoMatchLeavesResponseNil(t *testing.T) {
	h, err := NewHosts(nil, nil)
	require.NoError(t, err)

	qc := newQC("unknown.lan.")
	h.Run(context.Background(), qc)
	require.Nil(t, qc.Response)
	require.False(t, qc.Abort)
}

func TestHostsSkipsNonAddressQtype(t *testing.T) {
	h, err := NewHosts(nil, map[string][]string{"router.lan": {"192.168.1.1"}})
	require.NoError(t, err)

	qc := newQC("router.lan.")
	qc.Question.Qtype = dns.TypeMX
	h.Run(context.Background(), qc)
	require.Nil(t, qc.Response)
}
