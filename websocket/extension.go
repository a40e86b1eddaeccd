package websocket

// Extension is the capability set a negotiated WebSocket extension (RFC
// 6455 section 9) presents to the pipeline. Implementations may mutate
// RSV bits on the frame they return but must not change its Opcode, Fin,
// or MaskKey.
type Extension interface {
	// Name is the extension token as it appears in Sec-WebSocket-Extensions.
	Name() string

	// ProcessReceived transforms one reassembled data message, collapsed
	// into a single frame, before it reaches the message stream. Control
	// frames are not passed to it.
	ProcessReceived(f Frame) (Frame, error)

	// ProcessToSend transforms a frame before it is handed to the codec.
	ProcessToSend(f Frame) (Frame, error)

	// Shutdown releases any resources (e.g. a DEFLATE compressor) the
	// extension holds. Called once the reader loop has terminated.
	Shutdown()
}

// pipeline is an ordered chain of extensions. Inbound frames run through
// the chain in reverse negotiation order and outbound frames run through
// it in negotiation order, mirroring how RFC 6455 section 9.1 expects
// layered extensions to compose.
type pipeline struct {
	extensions []Extension
}

func newPipeline(extensions []Extension) *pipeline {
	return &pipeline{extensions: extensions}
}

func (p *pipeline) processReceived(f Frame) (Frame, error) {
	for i := len(p.extensions) - 1; i >= 0; i-- {
		var err error
		f, err = p.extensions[i].ProcessReceived(f)
		if err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

func (p *pipeline) processToSend(f Frame) (Frame, error) {
	for _, ext := range p.extensions {
		var err error
		f, err = ext.ProcessToSend(f)
		if err != nil {
			return Frame{}, err
		}
	}
	return f, nil
}

func (p *pipeline) shutdown() {
	for _, ext := range p.extensions {
		ext.Shutdown()
	}
}

// ExtensionBuilder negotiates one extension's presence and parameters
// during the handshake and produces a connection-scoped Extension once
// negotiation succeeds.
type ExtensionBuilder interface {
	// Name is the extension token this builder negotiates.
	Name() string

	// ClientOffer returns the parameter string (without the leading
	// "; ") the client appends to its Sec-WebSocket-Extensions offer for
	// this extension, e.g. "client_max_window_bits=10".
	ClientOffer() string

	// Accept is called server-side with the parameters the client
	// offered for this extension (parsed from its Sec-WebSocket-Extensions
	// header). It returns the response parameter string to echo back and
	// a connection-scoped Extension, or ok=false to decline the offer.
	Accept(offered map[string]string, isServer bool) (responseParams string, ext Extension, ok bool)

	// Confirm is called client-side with the parameters the server
	// echoed back. It builds the client-side Extension instance, or
	// returns an error if the server's response is not acceptable.
	Confirm(response map[string]string) (Extension, error)
}

// hasReservedBitOwner reports whether some negotiated extension claims
// meaning for the given RSV bit position (1, 2, or 3). Used by the
// session reader loop to decide whether a nonzero RSV bit on an incoming
// data frame is a protocol error, per RFC 6455 section 5.2.
func (p *pipeline) hasReservedBitOwner(bit int) bool {
	for _, ext := range p.extensions {
		if owner, ok := ext.(interface{ OwnsRSVBit(int) bool }); ok && owner.OwnsRSVBit(bit) {
			return true
		}
	}
	return false
}
