package talos

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	s := NewSigner("key", "secret")
	first := s.Sign("GET", "2024-05-01T12:00:00.000000Z", "tal-1.example.com", "/ws/v1", "")
	second := s.Sign("GET", "2024-05-01T12:00:00.000000Z", "tal-1.example.com", "/ws/v1", "")
	require.Equal(t, first, second)
}

func TestSignChangesWithEveryField(t *testing.T) {
	s := NewSigner("key", "secret")
	base := s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/path", "a=1")

	variants := []string{
		s.Sign("POST", "2024-05-01T12:00:00.000000Z", "host", "/path", "a=1"),
		s.Sign("GET", "2024-05-01T12:00:00.000001Z", "host", "/path", "a=1"),
		s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host2", "/path", "a=1"),
		s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/other", "a=1"),
		s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/path", "a=2"),
		NewSigner("key", "other").Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/path", "a=1"),
	}
	for i, v := range variants {
		require.NotEqual(t, base, v, "variant %d should alter signature", i)
	}
}

func TestSignOmitsEmptyQueryLine(t *testing.T) {
	s := NewSigner("key", "secret")
	// An empty query must not append a trailing newline to the canonical string.
	withQuery := s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/path", "")
	asFourLine := NewSigner("key", "secret").Sign("get", "2024-05-01T12:00:00.000000Z", "host", "/path", "")
	require.Equal(t, withQuery, asFourLine, "method casing must be canonicalised")
}

func TestSignatureIsURLSafeBase64(t *testing.T) {
	s := NewSigner("key", "secret")
	sig := s.Sign("GET", "2024-05-01T12:00:00.000000Z", "host", "/path", "x=y")
	require.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+=*$`), sig)
	// HMAC-SHA256 digests encode to 44 base64 characters including padding.
	require.Len(t, sig, 44)
}

func TestHeadersCarryAuthTriple(t *testing.T) {
	s := NewSigner(" key ", " secret ")
	h, sctx := s.Headers("GET", "tal-1.example.com", "/ws/v1", "")
	require.Equal(t, "key", h.Get("TALOS-KEY"))
	require.NotEmpty(t, h.Get("TALOS-TS"))
	require.NotEmpty(t, h.Get("TALOS-SIGN"))
	require.Equal(t, "tal-1.example.com", sctx.Host)
	require.Equal(t, "/ws/v1", sctx.Path)
	require.Equal(t, h.Get("TALOS-TS"), sctx.Timestamp)
	require.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}Z$`), sctx.Timestamp)
}
