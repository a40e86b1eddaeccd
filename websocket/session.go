package websocket

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the async orchestrator for one WebSocket connection: one
// goroutine owns the connection's protocol state (the reader loop below)
// and drives both the inbound MessageStream and the automatic ping/pong
// and close-handshake bookkeeping, while the Writer it exposes may be
// called concurrently from any number of caller goroutines.
type Session struct {
	id          string
	conn        io.ReadWriteCloser
	netConn     net.Conn
	br          *bufio.Reader
	bw          *bufio.Writer
	isServer    bool
	subprotocol string

	cfg   Config
	pipe  *pipeline
	sm    *stateMachine
	reasm *reassembler

	writer *Writer
	connMu sync.Mutex

	localCloseRequested atomic.Bool
	streamTaken          atomic.Bool

	msgCh chan Message
	errCh chan error
	done  chan struct{}
}

// newSession builds a Session over an already-upgraded transport and
// starts its event loop. extensions must already be in negotiated order
// (send order); the receive pipeline walks them in reverse, mirroring how
// layered extensions compose per RFC 6455 section 9.1.
func newSession(ctx context.Context, conn io.ReadWriteCloser, netConn net.Conn, isServer bool, cfg Config, extensions []Extension, subprotocol string) *Session {
	cfg = cfg.Normalize()

	id := uuid.NewString()

	s := &Session{
		id:          id,
		conn:        conn,
		netConn:     netConn,
		br:          bufio.NewReaderSize(conn, cfg.ReadBufferSize),
		bw:          bufio.NewWriterSize(conn, cfg.ReadBufferSize),
		isServer:    isServer,
		subprotocol: subprotocol,
		cfg:         cfg,
		pipe:        newPipeline(extensions),
		sm:          newStateMachine(cfg.AutoPingInterval),
		reasm:       newReassembler(cfg.MaxMessageSize, cfg.ValidateUTF8),
		msgCh:       make(chan Message),
		errCh:       make(chan error, 1),
		done:        make(chan struct{}),
	}
	s.writer = newWriter(s, isServer)

	go s.eventLoop(ctx)
	return s
}

// ID returns the session's unique identifier, stable for its lifetime.
func (s *Session) ID() string { return s.id }

// Subprotocol returns the negotiated subprotocol, or "" if none.
func (s *Session) Subprotocol() string { return s.subprotocol }

// Writer returns the session's outbound Writer.
func (s *Session) Writer() *Writer { return s.writer }

// LocalAddr returns the local network address, or nil if unavailable
// (e.g. an HTTP/2-bootstrapped session).
func (s *Session) LocalAddr() net.Addr {
	if s.netConn != nil {
		return s.netConn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote network address, or nil if unavailable.
func (s *Session) RemoteAddr() net.Addr {
	if s.netConn != nil {
		return s.netConn.RemoteAddr()
	}
	return nil
}

// Messages returns the session's inbound MessageStream. It may be called
// exactly once, since the stream consumes the session's only message
// channel; subsequent calls return ErrSingleIterator.
func (s *Session) Messages() (*MessageStream, error) {
	if !s.streamTaken.CompareAndSwap(false, true) {
		return nil, ErrSingleIterator
	}
	return &MessageStream{ch: s.msgCh, errCh: s.errCh}, nil
}

// Close sends a close frame with the given code and reason, then waits up
// to cfg.CloseTimeout for the event loop to observe the peer's close
// reply before forcibly tearing down the transport.
func (s *Session) Close(code CloseCode, reason string) error {
	err := s.writer.WriteClose(code, reason)
	if err != nil && err != ErrCloseSent {
		return err
	}

	select {
	case <-s.done:
	case <-time.After(s.cfg.CloseTimeout):
		_ = s.conn.Close()
		<-s.done
	}
	return nil
}

// sendFrame implements frameSink. It is the single chokepoint for every
// outbound frame, whether queued by the Writer or emitted directly by the
// event loop (pong replies, close replies, pings): it runs the send
// extension pipeline, applies client-side masking, and serializes the
// actual wire write against connMu.
func (s *Session) sendFrame(f Frame) error {
	if f.Opcode == OpClose {
		s.localCloseRequested.Store(true)
	}

	out, err := s.pipe.processToSend(f)
	if err != nil {
		return err
	}

	if !s.isServer {
		key, err := newMaskKey()
		if err != nil {
			return err
		}
		out.Masked = true
		out.MaskKey = key
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := out.Encode(s.bw); err != nil {
		return err
	}
	return s.bw.Flush()
}

// preparedFrame implements preparedFrameSink: only a server-role session
// with an empty extension pipeline can reuse a PreparedMessage's
// precomputed bytes unchanged.
func (s *Session) preparedFrame(pm *PreparedMessage) ([]byte, bool) {
	if !s.isServer || len(s.pipe.extensions) != 0 {
		return nil, false
	}
	return pm.serverFrame(), true
}

func (s *Session) sendRaw(raw []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if _, err := s.bw.Write(raw); err != nil {
		return err
	}
	return s.bw.Flush()
}

type frameOrErr struct {
	f   Frame
	err error
}

func (s *Session) readFrames(raw chan<- frameOrErr) {
	for {
		f, err := DecodeFrame(s.br, s.cfg.MaxFrameSize)
		raw <- frameOrErr{f, err}
		if err != nil {
			return
		}
	}
}

// eventLoop is the single goroutine that owns the state machine and
// reassembler for the lifetime of the session, so neither needs its own
// locking. It multiplexes decoded frames, the auto-ping ticker, and
// context cancellation.
func (s *Session) eventLoop(ctx context.Context) {
	defer close(s.done)
	defer s.pipe.shutdown()
	defer close(s.msgCh)

	raw := make(chan frameOrErr, 1)
	go s.readFrames(raw)

	var tickC <-chan time.Time
	if s.cfg.AutoPingInterval > 0 {
		ticker := time.NewTicker(s.cfg.AutoPingInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	finish := func(err error) {
		if err != nil {
			s.errCh <- err
		}
		_ = s.conn.Close()
	}

	for {
		select {
		case <-ctx.Done():
			_ = s.writer.WriteClose(CloseGoingAway, "context canceled")
			finish(ctx.Err())
			return

		case <-tickC:
			action, payload := s.sm.SendPing(time.Now())
			switch action {
			case actionSendPing:
				if err := s.sendFrame(Frame{Fin: true, Opcode: OpPing, Payload: payload[:]}); err != nil {
					finish(err)
					return
				}
			case actionTimeoutClose:
				_ = s.sendFrame(Frame{Fin: true, Opcode: OpClose, Payload: FormatClose(CloseGoingAway, "ping timeout")})
				finish(&CloseError{Code: CloseGoingAway, Text: "ping timeout"})
				return
			}

		case item := <-raw:
			if item.err != nil {
				finish(item.err)
				return
			}

			f := item.f
			if err := s.validateFrame(f); err != nil {
				_ = s.sendFrame(Frame{Fin: true, Opcode: OpClose, Payload: FormatClose(errorCloseCode(err), "")})
				finish(err)
				return
			}

			closed, err := s.handleFrame(f)
			if err != nil {
				_ = s.sendFrame(Frame{Fin: true, Opcode: OpClose, Payload: FormatClose(errorCloseCode(err), "")})
				finish(err)
				return
			}
			if closed {
				var closeErr error
				if s.sm.remoteCode != 0 {
					closeErr = &CloseError{Code: s.sm.remoteCode, Text: s.sm.remoteText}
				}
				finish(closeErr)
				return
			}
		}
	}
}

func (s *Session) validateFrame(f Frame) error {
	if s.isServer && !f.Masked {
		return ErrUnmaskedClientFrame
	}
	if !s.isServer && f.Masked {
		return ErrMaskedServerFrame
	}
	if (f.RSV1 && !s.pipe.hasReservedBitOwner(1)) ||
		(f.RSV2 && !s.pipe.hasReservedBitOwner(2)) ||
		(f.RSV3 && !s.pipe.hasReservedBitOwner(3)) {
		return ErrReservedBits
	}
	return nil
}

// handleFrame applies one decoded, validated frame to session state. It
// reports closed=true once the close handshake has fully completed and
// the event loop should exit.
func (s *Session) handleFrame(f Frame) (closed bool, err error) {
	switch f.Opcode {
	case OpPing:
		if s.sm.ReceivedPing() == actionSendPong {
			if err := s.sendFrame(Frame{Fin: true, Opcode: OpPong, Payload: f.Payload}); err != nil {
				return false, err
			}
		}
		return false, nil

	case OpPong:
		s.sm.ReceivedPong(f.Payload)
		return false, nil

	case OpClose:
		if s.localCloseRequested.Load() && s.sm.isOpen() {
			s.sm.Close()
		}
		shouldReply, replyCode, _, _ := s.sm.ReceivedClose(f.Payload)
		if shouldReply {
			if err := s.sendFrame(Frame{Fin: true, Opcode: OpClose, Payload: FormatClose(replyCode, "")}); err != nil {
				return true, err
			}
		}
		return true, nil

	case OpText, OpBinary:
		if err := s.reasm.Start(f); err != nil {
			return false, err
		}
		if f.Fin {
			return false, s.finishMessage()
		}
		return false, nil

	case OpContinuation:
		if err := s.reasm.Append(f); err != nil {
			return false, err
		}
		if f.Fin {
			return false, s.finishMessage()
		}
		return false, nil

	default:
		return false, ErrReservedOpcode
	}
}

func (s *Session) finishMessage() error {
	collapsed := s.reasm.Finish()
	processed, err := s.pipe.processReceived(collapsed)
	if err != nil {
		return err
	}
	msg, err := toMessage(processed, s.cfg.ValidateUTF8)
	if err != nil {
		return err
	}
	s.msgCh <- msg
	return nil
}
