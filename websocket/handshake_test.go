package websocket

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAcceptKeyRFCExample(t *testing.T) {
	// The canonical example from RFC 6455, section 1.3.
	got := computeAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", got)
}

func TestGenerateChallengeKeyIsUnique(t *testing.T) {
	a, err := generateChallengeKey()
	require.NoError(t, err)
	b, err := generateChallengeKey()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEqualASCIIFold(t *testing.T) {
	tests := []struct {
		name     string
		s, t     string
		expected bool
	}{
		{"exact match", "websocket", "websocket", true},
		{"case insensitive", "WebSocket", "websocket", true},
		{"different length", "abc", "ab", false},
		{"different content", "abc", "abd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, equalASCIIFold(tt.s, tt.t))
		})
	}
}

func TestIsUpgradeRequest(t *testing.T) {
	req := func(conn, upgrade string) *http.Request {
		r := &http.Request{Header: http.Header{}}
		if conn != "" {
			r.Header.Set("Connection", conn)
		}
		if upgrade != "" {
			r.Header.Set("Upgrade", upgrade)
		}
		return r
	}

	tests := []struct {
		name     string
		r        *http.Request
		expected bool
	}{
		{"valid upgrade", req("Upgrade", "websocket"), true},
		{"valid upgrade mixed case", req("upgrade", "WebSocket"), true},
		{"missing connection", req("", "websocket"), false},
		{"missing upgrade", req("Upgrade", ""), false},
		{"connection has other tokens too", req("keep-alive, Upgrade", "websocket"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsUpgradeRequest(tt.r))
		})
	}
}

func TestSubprotocols(t *testing.T) {
	r := &http.Request{Header: http.Header{}}
	r.Header.Add("Sec-WebSocket-Protocol", "chat, superchat")
	r.Header.Add("Sec-WebSocket-Protocol", "echo")

	got := Subprotocols(r)
	assert.Equal(t, []string{"chat", "superchat", "echo"}, got)
}

func TestParseExtensionHeader(t *testing.T) {
	h := http.Header{}
	h.Add("Sec-WebSocket-Extensions", `permessage-deflate; client_max_window_bits=10; server_no_context_takeover`)

	offers := parseExtensionHeader(h)
	require.Len(t, offers, 1)
	assert.Equal(t, "permessage-deflate", offers[0].name)
	assert.Equal(t, "10", offers[0].params["client_max_window_bits"])
	_, ok := offers[0].params["server_no_context_takeover"]
	assert.True(t, ok)
}

func TestParseExtensionHeaderMultipleOffers(t *testing.T) {
	h := http.Header{}
	h.Add("Sec-WebSocket-Extensions", "permessage-deflate, x-other-ext")

	offers := parseExtensionHeader(h)
	require.Len(t, offers, 2)
	assert.Equal(t, "permessage-deflate", offers[0].name)
	assert.Equal(t, "x-other-ext", offers[1].name)
}

func TestNegotiateServerExtensions(t *testing.T) {
	offers := []extensionOffer{
		{name: "permessage-deflate", params: map[string]string{}},
	}
	builders := []ExtensionBuilder{NewDeflateConfig()}

	negotiated, header := negotiateServerExtensions(offers, builders)
	require.Len(t, negotiated, 1)
	assert.Contains(t, header, "permessage-deflate")
}

func TestNegotiateServerExtensionsSkipsUnknown(t *testing.T) {
	offers := []extensionOffer{
		{name: "unknown-ext", params: map[string]string{}},
	}
	builders := []ExtensionBuilder{NewDeflateConfig()}

	negotiated, header := negotiateServerExtensions(offers, builders)
	assert.Empty(t, negotiated)
	assert.Empty(t, header)
}

func TestClientOfferHeader(t *testing.T) {
	header := clientOfferHeader([]ExtensionBuilder{NewDeflateConfig()})
	assert.Contains(t, header, "permessage-deflate")
}

func TestNegotiateClientExtensions(t *testing.T) {
	h := http.Header{}
	h.Add("Sec-WebSocket-Extensions", "permessage-deflate; server_max_window_bits=12")

	negotiated, err := negotiateClientExtensions(h, []ExtensionBuilder{NewDeflateConfig()})
	require.NoError(t, err)
	require.Len(t, negotiated, 1)
	assert.Equal(t, "permessage-deflate", negotiated[0].Name())
}
