package websocket

import "sync"

// frameSink is whatever actually puts bytes on the wire for a Writer: the
// session's transport plus its negotiated send pipeline and role. Session
// implements it; tests may substitute a fake.
type frameSink interface {
	sendFrame(f Frame) error
}

// Writer is the outbound side of a Session. All of its methods are safe
// to call concurrently: writes are serialized onto the transport in call
// order via an internal mutex, including the frames of a single streamed
// message, so a concurrent write can never interleave a frame into the
// middle of another message.
type Writer struct {
	mu       sync.Mutex
	sink     frameSink
	isServer bool
	closed   bool
}

func newWriter(sink frameSink, isServer bool) *Writer {
	return &Writer{sink: sink, isServer: isServer}
}

// WriteMessage sends a single complete message as one frame with fin=true.
func (w *Writer) WriteMessage(msg Message) error {
	op := OpBinary
	if msg.Type == TextMessage {
		op = OpText
	}
	return w.writeOne(op, msg.Data, true)
}

// WriteText is a convenience wrapper around WriteMessage for text messages.
func (w *Writer) WriteText(s string) error {
	return w.WriteMessage(Message{Type: TextMessage, Data: []byte(s)})
}

// WriteBinary is a convenience wrapper around WriteMessage for binary
// messages.
func (w *Writer) WriteBinary(p []byte) error {
	return w.WriteMessage(Message{Type: BinaryMessage, Data: p})
}

// WritePong sends an unsolicited pong carrying the given application data.
// Pongs sent automatically in reply to a ping do not go through this
// method; they are emitted directly by the session's reader loop so they
// cannot be reordered behind a blocked caller-initiated write for longer
// than the serialization mutex already implies.
func (w *Writer) WritePong(data []byte) error {
	if len(data) > MaxControlFramePayload {
		return ErrControlFramePayloadTooBig
	}
	return w.writeControl(OpPong, data)
}

// WriteClose sends a close frame with the given code and optional reason.
// It is idempotent: after the first call (from any source, including the
// session's own shutdown path) a further WriteClose returns ErrCloseSent
// and every other write returns ErrWriteAfterClose.
func (w *Writer) WriteClose(code CloseCode, reason string) error {
	payload := FormatClose(code, reason)
	if len(payload) > MaxControlFramePayload {
		return ErrControlFramePayloadTooBig
	}
	return w.writeControlClose(payload)
}

func (w *Writer) writeControlClose(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrCloseSent
	}
	w.closed = true
	return w.sink.sendFrame(Frame{Fin: true, Opcode: OpClose, Payload: payload})
}

func (w *Writer) writeControl(op Opcode, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriteAfterClose
	}
	return w.sink.sendFrame(Frame{Fin: true, Opcode: op, Payload: data})
}

func (w *Writer) writeOne(op Opcode, data []byte, fin bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriteAfterClose
	}
	return w.sink.sendFrame(Frame{Fin: fin, Opcode: op, Payload: data})
}

// FormatClose encodes a close code and optional reason as a close frame
// payload per RFC 6455 section 5.5.1. CloseNoStatusReceived produces an
// empty payload, since 1005 must never appear on the wire.
func FormatClose(code CloseCode, reason string) []byte {
	if code == CloseNoStatusReceived {
		return nil
	}
	buf := make([]byte, 2+len(reason))
	buf[0] = byte(code >> 8)
	buf[1] = byte(code)
	copy(buf[2:], reason)
	return buf
}

// messageWriter streams a single message as a sequence of frames: the
// first buffer is held pending; each later buffer flushes the pending one
// as a non-final text/binary frame and buffers the next as a non-final
// continuation; closing the scope flushes the last buffer with fin=true.
type messageWriter struct {
	w          *Writer
	op         Opcode
	pending    []byte
	firstWrite bool
}

// withMessageWriter holds w.mu for the entire streamed message, not just
// each fragment: releasing it between frames would let a concurrent
// WriteMessage interleave a data frame between this message's
// continuations, which a peer can't reassemble.
func (w *Writer) withMessageWriter(op Opcode, fn func(mw *messageWriter) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriteAfterClose
	}

	mw := &messageWriter{w: w, op: op}
	fnErr := fn(mw)
	// On error inside the scope, the buffered frame is still flushed
	// with fin=true: the peer must see every message end with a final
	// frame, even one that was only partially produced.
	flushErr := mw.flushFinal()
	if fnErr != nil {
		return fnErr
	}
	return flushErr
}

// WithTextMessageWriter streams a text message as a sequence of frames.
func (w *Writer) WithTextMessageWriter(fn func(write func(p []byte) error) error) error {
	return w.withMessageWriter(OpText, func(mw *messageWriter) error {
		return fn(mw.write)
	})
}

// WithBinaryMessageWriter streams a binary message as a sequence of frames.
func (w *Writer) WithBinaryMessageWriter(fn func(write func(p []byte) error) error) error {
	return w.withMessageWriter(OpBinary, func(mw *messageWriter) error {
		return fn(mw.write)
	})
}

// write and flushFinal assume w.mu is already held by the enclosing
// withMessageWriter call, so they send directly through the sink instead
// of going through writeOne's own locking.
func (mw *messageWriter) write(p []byte) error {
	buf := append([]byte(nil), p...)
	if !mw.firstWrite {
		mw.firstWrite = true
		mw.pending = buf
		return nil
	}

	op := mw.op
	mw.op = OpContinuation
	pending := mw.pending
	mw.pending = buf
	return mw.w.sink.sendFrame(Frame{Fin: false, Opcode: op, Payload: pending})
}

func (mw *messageWriter) flushFinal() error {
	return mw.w.sink.sendFrame(Frame{Fin: true, Opcode: mw.op, Payload: mw.pending})
}
