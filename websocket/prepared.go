package websocket

import (
	"bytes"
	"sync"
)

// PreparedMessage precomputes the plain, unmasked server-role wire frame
// for a message once, so broadcasting it to many connections avoids
// repeating the framing cost per recipient. It only short-circuits the
// framing work for server-role sessions with no negotiated extensions
// (e.g. permessage-deflate, whose compressor state is per-connection and
// cannot be shared); any other session falls back to the normal write
// path transparently.
type PreparedMessage struct {
	msgType MessageType
	data    []byte

	mu    sync.Mutex
	frame []byte
}

// NewPreparedMessage returns an initialized PreparedMessage.
func NewPreparedMessage(msgType MessageType, data []byte) (*PreparedMessage, error) {
	if msgType != TextMessage && msgType != BinaryMessage {
		return nil, ErrInvalidMessageType
	}
	return &PreparedMessage{msgType: msgType, data: data}, nil
}

func (pm *PreparedMessage) serverFrame() []byte {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.frame == nil {
		op := OpBinary
		if pm.msgType == TextMessage {
			op = OpText
		}
		f := Frame{Fin: true, Opcode: op, Payload: pm.data}
		var buf bytes.Buffer
		_ = f.Encode(&buf)
		pm.frame = buf.Bytes()
	}
	return pm.frame
}

// preparedFrameSink is implemented by frameSink values that can serve a
// pre-encoded frame directly, bypassing ProcessToSend and masking.
type preparedFrameSink interface {
	preparedFrame(pm *PreparedMessage) ([]byte, bool)
	sendRaw(raw []byte) error
}

// WritePreparedMessage writes pm. See PreparedMessage's doc comment for
// when the fast path applies.
func (w *Writer) WritePreparedMessage(pm *PreparedMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriteAfterClose
	}

	if ps, ok := w.sink.(preparedFrameSink); ok {
		if raw, ok := ps.preparedFrame(pm); ok {
			return ps.sendRaw(raw)
		}
	}

	op := OpBinary
	if pm.msgType == TextMessage {
		op = OpText
	}
	return w.sink.sendFrame(Frame{Fin: true, Opcode: op, Payload: pm.data})
}
