package processors

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestRejectDefaultsRcode(t *testing.T) {
	r := NewReject(0)
	qc := newQC("example.com.")
	r.Run(context.Background(), qc)

	require.True(t, qc.Abort)
	require.NotNil(t, qc.Response)
	require.Equal(t, DefaultRejectRcode, qc.Response.Rcode)
}

func TestRejectExplicitRcode(t *testing.T) {
	r := NewReject(dns.RcodeNameError)
	qc := newQC("example.com.")
	r.Run(context.Background(), qc)

	require.Equal(t, dns.RcodeNameError, qc.Response.Rcode)
	require.Equal(t, qc.Question.Name, qc.Response.Question[0].Name)
}
