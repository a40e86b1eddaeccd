package websocket

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Upgrader upgrades an incoming HTTP request to a WebSocket Session,
// implementing the server-side opening handshake of RFC 6455 section 4.2.
type Upgrader struct {
	// HandshakeTimeout bounds how long the 101 response has to be written.
	HandshakeTimeout time.Duration

	// Subprotocols lists the server's supported subprotocols in order of
	// preference; the first one also offered by the client is selected.
	Subprotocols []string

	// Extensions lists the extension builders the server is willing to
	// negotiate, tried in the order the client offered them.
	Extensions []ExtensionBuilder

	// Config bounds the resulting Session's resource and liveness limits.
	Config Config

	// CheckOrigin validates the request's Origin header. A nil CheckOrigin
	// falls back to same-origin, the conservative default for browser
	// clients that always send the header.
	CheckOrigin func(r *http.Request) bool

	// Error, if set, replaces the default plain-text error response.
	Error func(w http.ResponseWriter, r *http.Request, status int, reason error)
}

func (u *Upgrader) returnError(w http.ResponseWriter, r *http.Request, status int, reason error) {
	if u.Error != nil {
		u.Error(w, r, status, reason)
		return
	}
	http.Error(w, reason.Error(), status)
}

func (u *Upgrader) selectSubprotocol(r *http.Request) string {
	offered := Subprotocols(r)
	for _, p := range u.Subprotocols {
		for _, o := range offered {
			if o == p {
				return p
			}
		}
	}
	return ""
}

func checkSameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return equalASCIIFold(origin, "http://"+r.Host) || equalASCIIFold(origin, "https://"+r.Host)
}

// Upgrade performs the server-side opening handshake per RFC 6455 section
// 4.2.2 and returns a running Session. The caller should drain
// Session.Messages() until it reports !ok and then check its Err().
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request, responseHeader http.Header) (*Session, error) {
	if !IsUpgradeRequest(r) {
		u.returnError(w, r, http.StatusBadRequest, ErrBadHandshake)
		return nil, ErrBadHandshake
	}
	if r.Method != http.MethodGet {
		u.returnError(w, r, http.StatusMethodNotAllowed, ErrBadHandshake)
		return nil, ErrBadHandshake
	}
	if !equalASCIIFold(r.Header.Get("Sec-WebSocket-Version"), protocolVersion) {
		err := errors.New("websocket: unsupported version")
		u.returnError(w, r, http.StatusBadRequest, err)
		return nil, ErrBadHandshake
	}

	checkOrigin := u.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = checkSameOrigin
	}
	if !checkOrigin(r) {
		err := errors.New("websocket: origin not allowed")
		u.returnError(w, r, http.StatusForbidden, err)
		return nil, ErrBadHandshake
	}

	challengeKey := r.Header.Get("Sec-WebSocket-Key")
	if challengeKey == "" {
		err := errors.New("websocket: missing Sec-WebSocket-Key")
		u.returnError(w, r, http.StatusBadRequest, err)
		return nil, ErrBadHandshake
	}

	subprotocol := u.selectSubprotocol(r)
	offers := parseExtensionHeader(r.Header)
	extensions, extensionResponse := negotiateServerExtensions(offers, u.Extensions)

	h, ok := w.(http.Hijacker)
	if !ok {
		err := errors.New("websocket: response does not implement http.Hijacker")
		u.returnError(w, r, http.StatusInternalServerError, err)
		return nil, err
	}

	netConn, brw, err := h.Hijack()
	if err != nil {
		u.returnError(w, r, http.StatusInternalServerError, err)
		return nil, err
	}

	if u.HandshakeTimeout > 0 {
		_ = netConn.SetWriteDeadline(time.Now().Add(u.HandshakeTimeout))
	}

	buf := brw.Writer
	buf.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	buf.WriteString("Upgrade: websocket\r\n")
	buf.WriteString("Connection: Upgrade\r\n")
	buf.WriteString("Sec-WebSocket-Accept: ")
	buf.WriteString(computeAcceptKey(challengeKey))
	buf.WriteString("\r\n")

	if subprotocol != "" {
		buf.WriteString("Sec-WebSocket-Protocol: ")
		buf.WriteString(subprotocol)
		buf.WriteString("\r\n")
	}
	if extensionResponse != "" {
		buf.WriteString("Sec-WebSocket-Extensions: ")
		buf.WriteString(extensionResponse)
		buf.WriteString("\r\n")
	}
	for k, vs := range responseHeader {
		for _, v := range vs {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString("\r\n")
		}
	}
	buf.WriteString("\r\n")

	if err := buf.Flush(); err != nil {
		netConn.Close()
		return nil, err
	}
	if u.HandshakeTimeout > 0 {
		_ = netConn.SetWriteDeadline(time.Time{})
	}

	rwc := hijackedConn{Conn: netConn, pending: brw.Reader}

	sess := newSession(context.Background(), rwc, netConn, true, u.Config, extensions, subprotocol)
	return sess, nil
}

// hijackedConn wraps a hijacked net.Conn so that bytes the HTTP server
// already buffered ahead of the upgrade (from brw.Reader) are drained
// before falling through to further reads off the raw connection.
type hijackedConn struct {
	net.Conn
	pending *bufio.Reader
}

func (h hijackedConn) Read(p []byte) (int, error) {
	if h.pending != nil && h.pending.Buffered() > 0 {
		return h.pending.Read(p)
	}
	return h.Conn.Read(p)
}
