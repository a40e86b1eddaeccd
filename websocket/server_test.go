package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpgradeRejectsNonUpgradeRequest(t *testing.T) {
	upgrader := &Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Upgrade(w, r, nil)
		assert.Error(t, err)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpgradeRejectsUnsupportedVersion(t *testing.T) {
	upgrader := &Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := upgrader.Upgrade(w, r, nil)
		assert.Error(t, err)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	req.Header.Set("Sec-WebSocket-Version", "8")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpgraderSelectSubprotocol(t *testing.T) {
	u := &Upgrader{Subprotocols: []string{"chatv2", "chat"}}
	r := &http.Request{Header: http.Header{}}
	r.Header.Set("Sec-WebSocket-Protocol", "chat, other")

	assert.Equal(t, "chat", u.selectSubprotocol(r))
}

func TestUpgraderSelectSubprotocolNoMatch(t *testing.T) {
	u := &Upgrader{Subprotocols: []string{"chatv2"}}
	r := &http.Request{Header: http.Header{}}
	r.Header.Set("Sec-WebSocket-Protocol", "chat")

	assert.Equal(t, "", u.selectSubprotocol(r))
}

func TestCheckSameOrigin(t *testing.T) {
	tests := []struct {
		name     string
		origin   string
		host     string
		expected bool
	}{
		{"no origin header", "", "example.com", true},
		{"matching http origin", "http://example.com", "example.com", true},
		{"matching https origin", "https://example.com", "example.com", true},
		{"mismatched origin", "http://evil.com", "example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}, Host: tt.host}
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.expected, checkSameOrigin(r))
		})
	}
}

func TestUpgradeAndDialRoundTrip(t *testing.T) {
	upgrader := &Upgrader{Config: Config{CloseTimeout: time.Second}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		stream, err := sess.Messages()
		require.NoError(t, err)
		msg, ok := stream.Next()
		require.True(t, ok)
		require.NoError(t, sess.Writer().WriteText("echo:"+string(msg.Data)))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := &Dialer{Config: Config{CloseTimeout: time.Second}}
	sess, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.NoError(t, sess.Writer().WriteText("hi"))

	stream, err := sess.Messages()
	require.NoError(t, err)
	msg, ok := stream.Next()
	require.True(t, ok)
	assert.Equal(t, "echo:hi", string(msg.Data))
}

func TestUpgradeNegotiatesSubprotocol(t *testing.T) {
	upgrader := &Upgrader{
		Subprotocols: []string{"chat"},
		Config:       Config{CloseTimeout: time.Second},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		assert.Equal(t, "chat", sess.Subprotocol())
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialer := &Dialer{Subprotocols: []string{"chat"}, Config: Config{CloseTimeout: time.Second}}
	sess, resp, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "chat", sess.Subprotocol())
}
