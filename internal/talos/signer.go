// Package talos implements the Talos venue adapter: request signing, the
// execution-report stream watcher, event classification, and the REST
// open-orders client.
package talos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const (
	headerKey  = "TALOS-KEY"
	headerTS   = "TALOS-TS"
	headerSign = "TALOS-SIGN"

	// Talos timestamps are wall-clock UTC with microsecond precision.
	timestampLayout = "2006-01-02T15:04:05.000000Z"
)

// UTCTimestamp returns the current time formatted the way Talos expects
// signed timestamps.
func UTCTimestamp() string {
	return time.Now().UTC().Format(timestampLayout)
}

// Signer computes Talos request signatures for both the websocket handshake
// and REST calls.
type Signer struct {
	apiKey    string
	apiSecret string
}

// NewSigner creates a signer for the given credential pair. Inputs are
// trimmed because keys pasted into config files routinely carry whitespace.
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    strings.TrimSpace(apiKey),
		apiSecret: strings.TrimSpace(apiSecret),
	}
}

// Sign computes the URL-safe base64 HMAC-SHA256 signature over the canonical
// request string. The canonical string is METHOD, timestamp, host and path
// joined by newlines, with the query string appended as a fifth line only
// when non-empty. Identical inputs always produce an identical signature.
func (s *Signer) Sign(method, timestamp, host, path, query string) string {
	parts := []string{strings.ToUpper(method), timestamp, host, path}
	if query != "" {
		parts = append(parts, query)
	}
	payload := strings.Join(parts, "\n")

	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(payload))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// SignContext carries the non-secret fields of a signed request so failures
// can be reported without leaking credentials.
type SignContext struct {
	Timestamp string
	Host      string
	Path      string
}

// Headers returns the TALOS-KEY/TALOS-TS/TALOS-SIGN header triple for a
// request, generating a fresh timestamp at call time. Every signed request
// must use its own timestamp; callers never cache the result.
func (s *Signer) Headers(method, host, path, query string) (http.Header, SignContext) {
	ts := UTCTimestamp()
	sig := s.Sign(method, ts, host, path, query)
	h := http.Header{}
	h.Set(headerKey, s.apiKey)
	h.Set(headerTS, ts)
	h.Set(headerSign, sig)
	return h, SignContext{Timestamp: ts, Host: host, Path: path}
}
