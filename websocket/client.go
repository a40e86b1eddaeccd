package websocket

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
)

// DefaultDialer is a Dialer with every field at its default value.
var DefaultDialer = &Dialer{}

// Dialer negotiates the client-side opening handshake defined by RFC
// 6455 section 4.1, over HTTP/1.1 (optionally through a CONNECT proxy) or
// HTTP/2 (RFC 8441's extended CONNECT bootstrap).
type Dialer struct {
	// HTTPClient supplies the transport: its Transport field determines
	// whether the dial goes over HTTP/2 (http2.Transport), through a
	// proxy (http.Transport with Proxy set), or plain HTTP/1.1. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client

	// HandshakeTimeout bounds how long the opening handshake has to
	// complete, measured from the first byte written.
	HandshakeTimeout time.Duration

	// ReadBufferSize sizes the resulting Session's bufio.Reader.
	ReadBufferSize int

	// Subprotocols lists the subprotocols offered, in order of preference.
	Subprotocols []string

	// Extensions lists the extension builders offered, in the order they
	// should be sent (and, on success, applied on the send path).
	Extensions []ExtensionBuilder

	// Config bounds the resulting Session's resource and liveness limits.
	Config Config

	// Jar holds cookies to attach to the handshake request.
	Jar http.CookieJar
}

// Dial is DialContext with context.Background.
func (d *Dialer) Dial(urlStr string, requestHeader http.Header) (*Session, *http.Response, error) {
	return d.DialContext(context.Background(), urlStr, requestHeader)
}

// DialContext performs the client-side opening handshake and returns a
// running Session.
func (d *Dialer) DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*Session, *http.Response, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, nil, err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return nil, nil, errors.New("websocket: bad scheme")
	}
	if u.Host == "" {
		return nil, nil, errors.New("websocket: empty host")
	}

	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	if _, ok := client.Transport.(*http2.Transport); ok {
		return d.dialHTTP2(ctx, client, u, requestHeader)
	}

	if transport, ok := client.Transport.(*http.Transport); ok && transport != nil {
		if proxyURL := d.proxyURL(transport, u); proxyURL != nil {
			return d.dialWithProxy(ctx, transport, u, proxyURL, requestHeader)
		}
		if transport.DialContext != nil || transport.DialTLSContext != nil {
			return d.dialWithTransport(ctx, transport, u, requestHeader)
		}
	}

	return d.dialDirect(ctx, u, requestHeader, nil)
}

func (d *Dialer) proxyURL(transport *http.Transport, u *url.URL) *url.URL {
	if transport.Proxy == nil {
		return nil
	}
	proxyURL, err := transport.Proxy(&http.Request{URL: u})
	if err != nil {
		return nil
	}
	return proxyURL
}

func (d *Dialer) dialWithTransport(ctx context.Context, transport *http.Transport, u *url.URL, requestHeader http.Header) (*Session, *http.Response, error) {
	hostPort := hostPortFromURL(u)
	netConn, err := d.dialNet(ctx, transport, u.Scheme == "https", hostPort, u.Hostname())
	if err != nil {
		return nil, nil, err
	}
	return d.finishHandshake(ctx, netConn, u, requestHeader, transport.TLSClientConfig)
}

func (d *Dialer) dialWithProxy(ctx context.Context, transport *http.Transport, u, proxyURL *url.URL, requestHeader http.Header) (*Session, *http.Response, error) {
	proxyConn, err := d.dialProxy(ctx, transport, proxyURL, u)
	if err != nil {
		return nil, nil, err
	}
	var tlsConfig *tls.Config
	if transport != nil {
		tlsConfig = transport.TLSClientConfig
	}
	return d.finishHandshake(ctx, proxyConn, u, requestHeader, tlsConfig)
}

func (d *Dialer) dialDirect(ctx context.Context, u *url.URL, requestHeader http.Header, tlsConfig *tls.Config) (*Session, *http.Response, error) {
	hostPort := hostPortFromURL(u)
	var dialer net.Dialer
	netConn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme == "https" {
		cfg := &tls.Config{}
		if tlsConfig != nil {
			cfg = tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = u.Hostname()
		}
		tlsConn := tls.Client(netConn, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			netConn.Close()
			return nil, nil, err
		}
		netConn = tlsConn
	}
	return d.finishHandshake(ctx, netConn, u, requestHeader, tlsConfig)
}

// dialProxy connects to proxyURL and establishes a CONNECT tunnel to u,
// per RFC 7231 section 4.3.6, so WebSocket traffic can cross an HTTP proxy.
func (d *Dialer) dialProxy(ctx context.Context, transport *http.Transport, proxyURL, targetURL *url.URL) (net.Conn, error) {
	proxyHost := proxyURL.Host
	if proxyURL.Port() == "" {
		proxyHost = net.JoinHostPort(proxyURL.Hostname(), "80")
	}
	targetHostPort := hostPortFromURL(targetURL)

	var proxyConn net.Conn
	var err error
	if transport != nil && transport.DialContext != nil {
		proxyConn, err = transport.DialContext(ctx, "tcp", proxyHost)
	} else {
		var dialer net.Dialer
		proxyConn, err = dialer.DialContext(ctx, "tcp", proxyHost)
	}
	if err != nil {
		return nil, err
	}

	connectReq := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: targetHostPort},
		Host:   targetHostPort,
		Header: make(http.Header),
	}
	if proxyURL.User != nil {
		username := proxyURL.User.Username()
		password, _ := proxyURL.User.Password()
		connectReq.SetBasicAuth(username, password)
	}
	if err := connectReq.Write(proxyConn); err != nil {
		proxyConn.Close()
		return nil, err
	}

	br := bufio.NewReader(proxyConn)
	resp, err := http.ReadResponse(br, connectReq)
	if err != nil {
		proxyConn.Close()
		return nil, err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		proxyConn.Close()
		return nil, errors.New("websocket: proxy CONNECT failed: " + resp.Status)
	}

	if targetURL.Scheme == "https" {
		tlsConfig := &tls.Config{}
		if transport != nil && transport.TLSClientConfig != nil {
			tlsConfig = transport.TLSClientConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = targetURL.Hostname()
		}
		tlsConn := tls.Client(proxyConn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			proxyConn.Close()
			return nil, err
		}
		return tlsConn, nil
	}
	return proxyConn, nil
}

func (d *Dialer) dialNet(ctx context.Context, transport *http.Transport, isTLS bool, hostPort, serverName string) (net.Conn, error) {
	if !isTLS {
		if transport.DialContext != nil {
			return transport.DialContext(ctx, "tcp", hostPort)
		}
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", hostPort)
	}
	if transport.DialTLSContext != nil {
		return transport.DialTLSContext(ctx, "tcp", hostPort)
	}

	var netConn net.Conn
	var err error
	if transport.DialContext != nil {
		netConn, err = transport.DialContext(ctx, "tcp", hostPort)
	} else {
		var dialer net.Dialer
		netConn, err = dialer.DialContext(ctx, "tcp", hostPort)
	}
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{}
	if transport.TLSClientConfig != nil {
		cfg = transport.TLSClientConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}
	tlsConn := tls.Client(netConn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		netConn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// finishHandshake writes the client handshake request over netConn and
// validates the server's response, per RFC 6455 section 4.1 and 4.2.2.
func (d *Dialer) finishHandshake(ctx context.Context, netConn net.Conn, u *url.URL, requestHeader http.Header, _ *tls.Config) (*Session, *http.Response, error) {
	var deadline time.Time
	if d.HandshakeTimeout > 0 {
		deadline = time.Now().Add(d.HandshakeTimeout)
		_ = netConn.SetDeadline(deadline)
	}

	challengeKey, err := generateChallengeKey()
	if err != nil {
		netConn.Close()
		return nil, nil, err
	}

	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
		Host:       u.Host,
	}
	for k, vs := range requestHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", challengeKey)
	req.Header.Set("Sec-WebSocket-Version", protocolVersion)
	if len(d.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(d.Subprotocols, ", "))
	}
	if offer := clientOfferHeader(d.Extensions); offer != "" {
		req.Header.Set("Sec-WebSocket-Extensions", offer)
	}
	if d.Jar != nil {
		for _, cookie := range d.Jar.Cookies(u) {
			req.AddCookie(cookie)
		}
	}

	if err := req.Write(netConn); err != nil {
		netConn.Close()
		return nil, nil, err
	}

	br := bufio.NewReader(netConn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		netConn.Close()
		return nil, nil, err
	}
	if d.Jar != nil {
		if rc := resp.Cookies(); len(rc) > 0 {
			d.Jar.SetCookies(u, rc)
		}
	}

	if err := d.validateHandshakeResponse(resp, challengeKey); err != nil {
		netConn.Close()
		return nil, resp, err
	}

	extensions, err := negotiateClientExtensions(resp.Header, d.Extensions)
	if err != nil {
		netConn.Close()
		return nil, resp, err
	}

	if !deadline.IsZero() {
		_ = netConn.SetDeadline(time.Time{})
	}

	rwc := hijackedConn{Conn: netConn, pending: br}
	cfg := d.Config
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = d.ReadBufferSize
	}
	sess := newSession(ctx, rwc, netConn, false, cfg, extensions, resp.Header.Get("Sec-WebSocket-Protocol"))
	return sess, resp, nil
}

func (d *Dialer) validateHandshakeResponse(resp *http.Response, challengeKey string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		resp.Body.Close()
		return ErrBadHandshake
	}
	if !equalASCIIFold(resp.Header.Get("Upgrade"), "websocket") {
		return ErrBadHandshake
	}
	if !equalASCIIFold(resp.Header.Get("Connection"), "upgrade") {
		return ErrBadHandshake
	}
	if resp.Header.Get("Sec-WebSocket-Accept") != computeAcceptKey(challengeKey) {
		return ErrBadHandshake
	}
	subprotocol := resp.Header.Get("Sec-WebSocket-Protocol")
	if subprotocol != "" && len(d.Subprotocols) > 0 {
		found := false
		for _, p := range d.Subprotocols {
			if p == subprotocol {
				found = true
				break
			}
		}
		if !found {
			return ErrBadHandshake
		}
	}
	return nil
}

// dialHTTP2 bootstraps a WebSocket session over an HTTP/2 connection using
// the extended CONNECT method, per RFC 8441 section 4.
func (d *Dialer) dialHTTP2(ctx context.Context, client *http.Client, u *url.URL, requestHeader http.Header) (*Session, *http.Response, error) {
	req := &http.Request{
		Method: http.MethodConnect,
		URL:    u,
		Host:   u.Host,
		Proto:  "websocket",
		Header: make(http.Header),
	}
	req = req.WithContext(ctx)
	for k, vs := range requestHeader {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if len(d.Subprotocols) > 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(d.Subprotocols, ", "))
	}
	if offer := clientOfferHeader(d.Extensions); offer != "" {
		req.Header.Set("Sec-WebSocket-Extensions", offer)
	}
	if d.Jar != nil {
		for _, cookie := range d.Jar.Cookies(u) {
			req.AddCookie(cookie)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	if d.Jar != nil {
		if rc := resp.Cookies(); len(rc) > 0 {
			d.Jar.SetCookies(u, rc)
		}
	}

	// RFC 8441 section 4: a successful extended CONNECT returns 200, not
	// the 101 an HTTP/1.1 upgrade would use.
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, resp, ErrBadHandshake
	}

	extensions, err := negotiateClientExtensions(resp.Header, d.Extensions)
	if err != nil {
		resp.Body.Close()
		return nil, resp, err
	}

	rwc, ok := resp.Body.(io.ReadWriteCloser)
	if !ok {
		resp.Body.Close()
		return nil, resp, errors.New("websocket: response body is not ReadWriteCloser")
	}

	cfg := d.Config
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = d.ReadBufferSize
	}
	sess := newSession(ctx, rwc, nil, false, cfg, extensions, resp.Header.Get("Sec-WebSocket-Protocol"))
	return sess, resp, nil
}

// hostPortFromURL returns host:port, filling in the scheme's default port
// when the URL did not specify one.
func hostPortFromURL(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443")
	}
	return net.JoinHostPort(u.Hostname(), "80")
}
