package websocket

import (
	"bytes"
	"compress/flate"
	"io"
	"strconv"
	"strings"
)

// deflateTrailer is the 4-byte empty-block suffix DEFLATE always appends
// after a Z_SYNC_FLUSH. RFC 7692 section 7.2.1 requires the sender strip
// it from the final frame of a compressed message; section 7.2.2 requires
// the receiver append it back before decompressing.
var deflateTrailer = []byte{0x00, 0x00, 0xff, 0xff}

// deflateFinalBlock is an empty, final stored block. compress/flate reports
// io.ErrUnexpectedEOF when its input ends without a final block, which a
// sync-flushed message never has, so the receiver appends this after the
// trailer to let the decompressor reach a clean end of stream.
var deflateFinalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

const (
	minWindowBits     = 9
	maxWindowBits     = 15
	defaultWindowBits = 15

	defaultMinFrameSizeToCompress = 16
)

// DeflateConfig is the permessage-deflate (RFC 7692) ExtensionBuilder.
// Construct with NewDeflateConfig and pass it in Upgrader.Extensions or
// Dialer.Extensions to enable negotiation.
type DeflateConfig struct {
	// ServerMaxWindowBits and ClientMaxWindowBits bound the sliding
	// window size each direction's compressor may use, 9-15. Zero means
	// "use the default of 15" (RFC 7692, section 7.1).
	ServerMaxWindowBits int
	ClientMaxWindowBits int

	// ServerNoContextTakeover and ClientNoContextTakeover request that
	// the named side reset its compressor state after every message
	// instead of carrying the sliding-window dictionary across messages.
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool

	// MinFrameSizeToCompress is the smallest raw payload size, in bytes,
	// that triggers compression. Below the threshold a message is sent
	// uncompressed, since DEFLATE's framing overhead outweighs the
	// savings on tiny payloads. Defaults to 16.
	MinFrameSizeToCompress int

	// MaxDecompressedSize caps the output of the inflater per message; a
	// message that would decompress past this closes the connection with
	// unacceptableData (RFC 7692, section 8, "message too large"). Zero
	// means unbounded, which is discouraged outside of tests.
	MaxDecompressedSize int64
}

// NewDeflateConfig returns a DeflateConfig with RFC 7692 defaults: 15-bit
// windows, context retained across messages, 16-byte compression threshold.
func NewDeflateConfig() *DeflateConfig {
	return &DeflateConfig{
		ServerMaxWindowBits:    defaultWindowBits,
		ClientMaxWindowBits:    defaultWindowBits,
		MinFrameSizeToCompress: defaultMinFrameSizeToCompress,
	}
}

func (d *DeflateConfig) Name() string { return "permessage-deflate" }

func (d *DeflateConfig) ClientOffer() string {
	var parts []string
	if d.ClientMaxWindowBits != 0 && d.ClientMaxWindowBits != defaultWindowBits {
		parts = append(parts, "client_max_window_bits="+strconv.Itoa(d.ClientMaxWindowBits))
	} else {
		parts = append(parts, "client_max_window_bits")
	}
	if d.ServerMaxWindowBits != 0 && d.ServerMaxWindowBits != defaultWindowBits {
		parts = append(parts, "server_max_window_bits="+strconv.Itoa(d.ServerMaxWindowBits))
	}
	if d.ClientNoContextTakeover {
		parts = append(parts, "client_no_context_takeover")
	}
	if d.ServerNoContextTakeover {
		parts = append(parts, "server_no_context_takeover")
	}
	return strings.Join(parts, "; ")
}

// Accept negotiates the server's response to a client's offered
// parameters: the server mirrors the effective (clamped) window sizes
// and preserves either side's no-context-takeover request, per RFC 7692
// section 7.1's parameter negotiation rules.
func (d *DeflateConfig) Accept(offered map[string]string, isServer bool) (string, Extension, bool) {
	if !isServer {
		return "", nil, false
	}

	serverBits := d.effectiveServerBits()
	if v, ok := offered["server_max_window_bits"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n >= minWindowBits && n < serverBits {
			serverBits = n
		}
	}

	clientBits := defaultWindowBits
	_, clientOffered := offered["client_max_window_bits"]
	if v, ok := offered["client_max_window_bits"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= minWindowBits && n <= maxWindowBits {
			clientBits = n
		}
	}
	if limit := d.effectiveClientBits(); limit < clientBits {
		clientBits = limit
	}

	_, clientNoCtx := offered["client_no_context_takeover"]
	clientNoCtx = clientNoCtx || d.ClientNoContextTakeover
	_, serverNoCtx := offered["server_no_context_takeover"]
	serverNoCtx = serverNoCtx || d.ServerNoContextTakeover

	var parts []string
	parts = append(parts, "server_max_window_bits="+strconv.Itoa(serverBits))
	if clientOffered {
		parts = append(parts, "client_max_window_bits="+strconv.Itoa(clientBits))
	}
	if serverNoCtx {
		parts = append(parts, "server_no_context_takeover")
	}
	if clientNoCtx {
		parts = append(parts, "client_no_context_takeover")
	}

	ext := newDeflateExtension(deflateParams{
		isServer:        true,
		sendBits:        serverBits,
		recvBits:        clientBits,
		sendNoCtxTake:   serverNoCtx,
		recvNoCtxTake:   clientNoCtx,
		minSizeToComp:   d.minFrameSizeToCompress(),
		maxDecompressed: d.MaxDecompressedSize,
	})
	return strings.Join(parts, "; "), ext, true
}

// Confirm builds the client-side extension instance from the server's
// echoed response parameters.
func (d *DeflateConfig) Confirm(response map[string]string) (Extension, error) {
	serverBits := defaultWindowBits
	if v, ok := response["server_max_window_bits"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			serverBits = n
		}
	}
	clientBits := defaultWindowBits
	if v, ok := response["client_max_window_bits"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			clientBits = n
		}
	}
	_, serverNoCtx := response["server_no_context_takeover"]
	_, clientNoCtx := response["client_no_context_takeover"]

	return newDeflateExtension(deflateParams{
		isServer:        false,
		sendBits:        clientBits,
		recvBits:        serverBits,
		sendNoCtxTake:   clientNoCtx,
		recvNoCtxTake:   serverNoCtx,
		minSizeToComp:   d.minFrameSizeToCompress(),
		maxDecompressed: d.MaxDecompressedSize,
	}), nil
}

func (d *DeflateConfig) effectiveServerBits() int {
	if d.ServerMaxWindowBits >= minWindowBits && d.ServerMaxWindowBits <= maxWindowBits {
		return d.ServerMaxWindowBits
	}
	return defaultWindowBits
}

func (d *DeflateConfig) effectiveClientBits() int {
	if d.ClientMaxWindowBits >= minWindowBits && d.ClientMaxWindowBits <= maxWindowBits {
		return d.ClientMaxWindowBits
	}
	return defaultWindowBits
}

func (d *DeflateConfig) minFrameSizeToCompress() int {
	if d.MinFrameSizeToCompress > 0 {
		return d.MinFrameSizeToCompress
	}
	return defaultMinFrameSizeToCompress
}

// deflateParams fully describes one connection's negotiated
// permessage-deflate behavior from one side's point of view.
type deflateParams struct {
	isServer        bool
	sendBits        int // window bits this side compresses with
	recvBits        int // window bits the peer compresses with
	sendNoCtxTake   bool
	recvNoCtxTake   bool
	minSizeToComp   int
	maxDecompressed int64
}

// deflateExtension is the per-connection Extension instance. It keeps one
// compressor and one decompressor for the lifetime of the connection, each
// owned exclusively by this instance, so that the LZ77 sliding window can
// be carried across messages when context takeover is in effect: a shared
// or pooled compressor could be handed to a different connection between
// messages and would corrupt that window.
type deflateExtension struct {
	params deflateParams

	fw        *flate.Writer
	fwBuf     bytes.Buffer
	inMessage bool // true once the first frame of an outbound message set rsv1

	fr       io.ReadCloser // retained across messages unless no-context-takeover
	recvDict []byte        // trailing decompressed bytes, used as the preset dictionary on reset
}

func newDeflateExtension(p deflateParams) *deflateExtension {
	d := &deflateExtension{params: p}
	d.fw, _ = flate.NewWriter(&d.fwBuf, flate.DefaultCompression)
	return d
}

func (d *deflateExtension) Name() string { return "permessage-deflate" }

func (d *deflateExtension) OwnsRSVBit(bit int) bool { return bit == 1 }

// ProcessToSend compresses a message whose first frame's raw payload is at
// least MinFrameSizeToCompress bytes, with Z_SYNC_FLUSH, per RFC 7692 section 7.2.1:
// RSV1 is set only on the first frame of the message, and the trailing
// 00 00 ff ff is stripped from the final frame.
func (d *deflateExtension) ProcessToSend(f Frame) (Frame, error) {
	if !f.Opcode.IsData() {
		return f, nil
	}
	if f.Opcode != OpContinuation && !d.inMessage {
		if len(f.Payload) < d.params.minSizeToComp {
			return f, nil
		}
		d.inMessage = true
		f.RSV1 = true
	} else if !d.inMessage {
		return f, nil
	}

	d.fwBuf.Reset()
	if _, err := d.fw.Write(f.Payload); err != nil {
		return Frame{}, err
	}
	if err := d.fw.Flush(); err != nil {
		return Frame{}, err
	}

	out := d.fwBuf.Bytes()
	if f.Fin && bytes.HasSuffix(out, deflateTrailer) {
		out = out[:len(out)-len(deflateTrailer)]
	}
	f.Payload = append([]byte(nil), out...)

	if f.Fin {
		d.inMessage = false
		if d.params.sendNoCtxTake {
			d.resetWriter()
		}
	}
	return f, nil
}

func (d *deflateExtension) resetWriter() {
	d.fwBuf.Reset()
	d.fw, _ = flate.NewWriter(&d.fwBuf, flate.DefaultCompression)
}

// ProcessReceived decompresses a message whose *first* frame had RSV1
// set. Per-frame payload is buffered by the caller (the session's message
// reassembly) until the message is complete, then handed here as a single
// collapsed Frame, keeping this extension's interface single-shot rather
// than streaming.
func (d *deflateExtension) ProcessReceived(f Frame) (Frame, error) {
	if !f.RSV1 || !f.Opcode.IsData() {
		return f, nil
	}

	payload := append(append([]byte(nil), f.Payload...), deflateTrailer...)
	payload = append(payload, deflateFinalBlock...)

	fr := d.reader(bytes.NewReader(payload))
	var out bytes.Buffer
	limit := d.params.maxDecompressed
	if limit <= 0 {
		limit = 1 << 62
	}
	n, err := io.Copy(&out, io.LimitReader(fr, limit+1))
	if err != nil {
		return Frame{}, ErrDecompressionFailed
	}
	if n > limit {
		return Frame{}, ErrDecompressedTooLarge
	}

	if d.params.recvNoCtxTake {
		d.recvDict = nil
	} else {
		d.recvDict = appendWindow(d.recvDict, out.Bytes())
	}

	f.RSV1 = false
	f.Payload = out.Bytes()
	return f, nil
}

// appendWindow grows dict with data and trims it back to the largest
// distance DEFLATE back-references can span (32 KiB, a 15-bit window),
// whatever window size was negotiated.
func appendWindow(dict, data []byte) []byte {
	dict = append(dict, data...)
	if windowSize := 1 << maxWindowBits; len(dict) > windowSize {
		dict = dict[len(dict)-windowSize:]
	}
	return dict
}

// reader hands the decompressor a fresh source for the next message.
// compress/flate has no way to keep reading across a reader boundary, so
// context takeover is emulated by re-priming the decompressor with a
// preset dictionary of the last window's worth of decompressed bytes
// (d.recvDict) rather than by leaving the stream open: resetting with a
// nil dictionary, as no-context-takeover requires, drops that history.
func (d *deflateExtension) reader(r io.Reader) io.Reader {
	if d.fr == nil {
		d.fr = flate.NewReaderDict(r, d.recvDict)
		return d.fr
	}
	if resetter, ok := d.fr.(flate.Resetter); ok {
		_ = resetter.Reset(r, d.recvDict)
	}
	return d.fr
}

func (d *deflateExtension) Shutdown() {
	if d.fr != nil {
		_ = d.fr.Close()
		d.fr = nil
	}
	d.recvDict = nil
}
