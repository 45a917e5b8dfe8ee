package utils

import (
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

const (
	// AnonymousIdentifier is the shared key for callers whose origin cannot be
	// attributed; they still fall under a global limit instead of bypassing it.
	AnonymousIdentifier = "anonymous"

	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"
)

// Extractor derives the rate limiting identifier from a request without
// reading its body.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type headerKeyExtractor struct {
	headers []string
}

// NewHTTPHeadersExtractor keys requests by the values of headers joined with
// "-", e.g. an API key plus a tenant header. A request missing any of them is
// an error, so a keyed route cannot be reached anonymously.
func NewHTTPHeadersExtractor(headers ...string) Extractor {
	return &headerKeyExtractor{headers: headers}
}

func (h *headerKeyExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))
	for _, name := range h.headers {
		v := strings.TrimSpace(r.Header.Get(name))
		if v == "" {
			return "", fmt.Errorf("missing %s header", name)
		}
		values = append(values, v)
	}
	return strings.Join(values, "-"), nil
}

type clientIPExtractor struct{}

// NewClientIPExtractor returns the default Extractor: the originating client IP
// as reported by the proxy chain. It never fails.
func NewClientIPExtractor() Extractor {
	return clientIPExtractor{}
}

func (clientIPExtractor) Extract(r *http.Request) (string, error) {
	return ClientIdentifier(r.Header), nil
}

// ClientIdentifier picks the first hop of X-Forwarded-For, then X-Real-IP,
// then AnonymousIdentifier.
func ClientIdentifier(h http.Header) string {
	return resolve(h.Values(HeaderForwardedFor), h.Values(HeaderRealIP))
}

// ClientIdentifierFromMetadata is ClientIdentifier for gRPC incoming metadata,
// whose keys are lower-cased.
func ClientIdentifierFromMetadata(md metadata.MD) string {
	return resolve(
		md.Get(strings.ToLower(HeaderForwardedFor)),
		md.Get(strings.ToLower(HeaderRealIP)),
	)
}

func resolve(forwardedFor, realIP []string) string {
	// repeated headers are one logical comma-separated chain
	if len(forwardedFor) > 0 {
		first := strings.TrimSpace(strings.SplitN(forwardedFor[0], ",", 2)[0])
		if first != "" {
			return first
		}
	}

	for _, v := range realIP {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return AnonymousIdentifier
}
