package websocket

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
)

// websocketGUID is the globally unique identifier used to compute
// Sec-WebSocket-Accept, per RFC 6455, section 4.2.2, item 5.4.
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// protocolVersion is the only WebSocket protocol version this engine
// speaks, per RFC 6455 section 11.9.
const protocolVersion = "13"

// computeAcceptKey computes Sec-WebSocket-Accept from a client's
// Sec-WebSocket-Key, per RFC 6455, section 4.2.2, item 5.4.
func computeAcceptKey(challengeKey string) string {
	h := sha1.New()
	h.Write([]byte(challengeKey))
	h.Write([]byte(websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// generateChallengeKey returns a fresh 16-byte, base64-encoded
// Sec-WebSocket-Key, per RFC 6455, section 4.1.
func generateChallengeKey() (string, error) {
	key := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func equalASCIIFold(s, t string) bool {
	if len(s) != len(t) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], t[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if equalASCIIFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// IsUpgradeRequest reports whether r carries the Connection/Upgrade
// tokens RFC 6455 section 4.2.1 requires of a WebSocket handshake.
func IsUpgradeRequest(r *http.Request) bool {
	return headerContainsToken(r.Header, "Connection", "upgrade") &&
		headerContainsToken(r.Header, "Upgrade", "websocket")
}

// Subprotocols returns the subprotocols offered in a request's
// Sec-WebSocket-Protocol header(s), per RFC 6455 section 11.3.4.
func Subprotocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// extensionOffer is one parsed token from a Sec-WebSocket-Extensions
// header, per RFC 6455, section 9.1.
type extensionOffer struct {
	name   string
	params map[string]string
}

// parseExtensionHeader parses every Sec-WebSocket-Extensions header line
// into its constituent extension offers.
func parseExtensionHeader(h http.Header) []extensionOffer {
	var offers []extensionOffer
	for _, line := range h.Values("Sec-WebSocket-Extensions") {
		for _, tok := range strings.Split(line, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			parts := strings.Split(tok, ";")
			o := extensionOffer{
				name:   strings.TrimSpace(parts[0]),
				params: make(map[string]string),
			}
			for _, p := range parts[1:] {
				p = strings.TrimSpace(p)
				if p == "" {
					continue
				}
				if idx := strings.IndexByte(p, '='); idx >= 0 {
					key := strings.TrimSpace(p[:idx])
					val := strings.Trim(strings.TrimSpace(p[idx+1:]), `"`)
					o.params[key] = val
				} else {
					o.params[p] = ""
				}
			}
			offers = append(offers, o)
		}
	}
	return offers
}

// negotiateServerExtensions walks the client's offered extensions against
// the server's configured builders in the order the client offered them,
// accepting at most one instance of each named extension.
// It returns the negotiated extensions, in the order they were negotiated
// (the session applies the send pipeline in that same order), and the
// response header value to send back.
func negotiateServerExtensions(offers []extensionOffer, builders []ExtensionBuilder) ([]Extension, string) {
	var negotiated []Extension
	var responseParts []string
	accepted := make(map[string]bool)

	for _, offer := range offers {
		if accepted[offer.name] {
			continue
		}
		for _, b := range builders {
			if b.Name() != offer.name {
				continue
			}
			params, ext, ok := b.Accept(offer.params, true)
			if !ok {
				continue
			}
			token := b.Name()
			if params != "" {
				token += "; " + params
			}
			responseParts = append(responseParts, token)
			negotiated = append(negotiated, ext)
			accepted[offer.name] = true
			break
		}
	}

	return negotiated, strings.Join(responseParts, ", ")
}

// negotiateClientExtensions parses the server's Sec-WebSocket-Extensions
// response against the builders the client offered and builds the
// client-side Extension instances.
func negotiateClientExtensions(resp http.Header, builders []ExtensionBuilder) ([]Extension, error) {
	offers := parseExtensionHeader(resp)
	var negotiated []Extension
	for _, offer := range offers {
		for _, b := range builders {
			if b.Name() != offer.name {
				continue
			}
			ext, err := b.Confirm(offer.params)
			if err != nil {
				return nil, err
			}
			negotiated = append(negotiated, ext)
			break
		}
	}
	return negotiated, nil
}

// clientOfferHeader builds the Sec-WebSocket-Extensions request header
// value for the given builders, in configured order; that order becomes
// the negotiated send order for the resulting pipeline.
func clientOfferHeader(builders []ExtensionBuilder) string {
	var parts []string
	for _, b := range builders {
		token := b.Name()
		if p := b.ClientOffer(); p != "" {
			token += "; " + p
		}
		parts = append(parts, token)
	}
	return strings.Join(parts, ", ")
}
