package processors

import (
	"context"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

func TestSystemNonAddressQtypeYieldsEmptyAnswer(t *testing.T) {
	s := NewSystem()
	qc := newQC("example.com.")
	qc.Question.Qtype = dns.TypeMX

	s.Run(context.Background(), qc)

	require.True(t, qc.Abort)
	require.NotNil(t, qc.Response)
	require.Empty(t, qc.Response.Answer)
	require.Equal(t, dns.RcodeSuccess, qc.Response.Rcode)
	require.Equal(t, "system", qc.ResolvedVia)
}
