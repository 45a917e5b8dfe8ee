package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/metadata"
)

func TestClientIdentifier(t *testing.T) {
	var tests = []struct {
		name    string
		headers map[string][]string
		want    string
	}{
		{
			name:    "first hop of forwarded chain",
			headers: map[string][]string{HeaderForwardedFor: {"203.0.113.7, 10.0.0.1, 10.0.0.2"}},
			want:    "203.0.113.7",
		},
		{
			name: "forwarded for wins over real ip",
			headers: map[string][]string{
				HeaderForwardedFor: {"203.0.113.7"},
				HeaderRealIP:       {"198.51.100.1"},
			},
			want: "203.0.113.7",
		},
		{
			name:    "repeated forwarded headers use the first",
			headers: map[string][]string{HeaderForwardedFor: {"203.0.113.7", "10.0.0.1"}},
			want:    "203.0.113.7",
		},
		{
			name:    "real ip fallback",
			headers: map[string][]string{HeaderRealIP: {" 198.51.100.1 "}},
			want:    "198.51.100.1",
		},
		{
			name: "empty first hop falls through to real ip",
			headers: map[string][]string{
				HeaderForwardedFor: {" , 10.0.0.1"},
				HeaderRealIP:       {"198.51.100.1"},
			},
			want: "198.51.100.1",
		},
		{
			name:    "blank headers are anonymous",
			headers: map[string][]string{HeaderForwardedFor: {"   "}, HeaderRealIP: {""}},
			want:    AnonymousIdentifier,
		},
		{
			name: "no headers are anonymous",
			want: AnonymousIdentifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, vs := range tt.headers {
				for _, v := range vs {
					h.Add(k, v)
				}
			}
			assert.Equal(t, tt.want, ClientIdentifier(h))
		})
	}
}

func TestClientIPExtractor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"

	key, err := NewClientIPExtractor().Extract(r)
	assert.NoError(t, err)
	assert.Equal(t, AnonymousIdentifier, key)

	r.Header.Set("x-forwarded-for", "192.0.2.44")
	key, err = NewClientIPExtractor().Extract(r)
	assert.NoError(t, err)
	assert.Equal(t, "192.0.2.44", key)
}

func TestClientIdentifierFromMetadata(t *testing.T) {
	md := metadata.Pairs("x-real-ip", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", ClientIdentifierFromMetadata(md))

	md = metadata.Pairs("X-Forwarded-For", "203.0.113.1, 10.0.0.1", "x-real-ip", "198.51.100.9")
	assert.Equal(t, "203.0.113.1", ClientIdentifierFromMetadata(md))

	assert.Equal(t, AnonymousIdentifier, ClientIdentifierFromMetadata(metadata.MD{}))
}

func TestHTTPHeadersExtractor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Api-Key", "key-1")

	_, err := NewHTTPHeadersExtractor("X-Api-Key", "X-User").Extract(r)
	assert.Error(t, err)

	r.Header.Set("X-User", "alice")
	key, err := NewHTTPHeadersExtractor("X-Api-Key", "X-User").Extract(r)
	assert.NoError(t, err)
	assert.Equal(t, "key-1-alice", key)
}
