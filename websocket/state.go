package websocket

import "time"

// connState is the connection lifecycle RFC 6455 section 7 defines:
// open, closing (a close frame has gone one way), and closed.
type connState int

const (
	stateOpen connState = iota
	stateClosing
	stateClosed
)

// pingAction tells the caller what, if anything, to put on the wire as a
// result of a state machine transition.
type pingAction int

const (
	actionNone pingAction = iota
	actionSendPing
	actionSendPong
	actionSendClose
	actionTimeoutClose
)

// stateMachine tracks one connection's close and ping/pong handshakes. It
// is owned and mutated exclusively by the session's reader goroutine (and
// the auto-ping timer, which only ever calls SendPing through the same
// goroutine's scheduling loop — see session.go), so no locking is
// required.
type stateMachine struct {
	state      connState
	pingPeriod time.Duration

	lastPingTime time.Time
	havePing     bool
	pingPayload  [16]byte

	remoteCode CloseCode
	remoteText string
}

func newStateMachine(pingPeriod time.Duration) *stateMachine {
	return &stateMachine{state: stateOpen, pingPeriod: pingPeriod}
}

func (s *stateMachine) isOpen() bool    { return s.state == stateOpen }
func (s *stateMachine) isClosed() bool  { return s.state == stateClosed }
func (s *stateMachine) isClosing() bool { return s.state == stateClosing }

// Close implements the close() input: open -> closing, emit a close frame.
func (s *stateMachine) Close() (pingAction, bool) {
	if s.state != stateOpen {
		return actionNone, false
	}
	s.state = stateClosing
	return actionSendClose, true
}

// ReceivedClose implements the received_close(payload) input. shouldReply
// reports whether a close frame must be sent back (false only when the
// state was already closing, i.e. this is the peer's reply to a close we
// sent first); replyCode is the code to put in that frame. remoteCode and
// remoteText are the received code and reason, also recorded for
// MessageStream's Err: CloseNoStatusReceived for an empty payload,
// CloseProtocolError with no reason for an invalid payload, and zero
// values (nothing recorded) for the reply to a close we sent first.
func (s *stateMachine) ReceivedClose(payload []byte) (shouldReply bool, replyCode CloseCode, remoteCode CloseCode, remoteText string) {
	if s.state == stateClosing {
		s.state = stateClosed
		return false, 0, 0, ""
	}

	remoteCode = CloseNoStatusReceived
	switch {
	case len(payload) == 1:
		s.state = stateClosed
		s.remoteCode, s.remoteText = CloseProtocolError, ""
		return true, CloseProtocolError, CloseProtocolError, ""
	case len(payload) >= 2:
		remoteCode = CloseCode(uint16(payload[0])<<8 | uint16(payload[1]))
		remoteText = string(payload[2:])
		if !remoteCode.ValidOnWire() {
			s.state = stateClosed
			s.remoteCode, s.remoteText = CloseProtocolError, ""
			return true, CloseProtocolError, CloseProtocolError, ""
		}
	}

	s.remoteCode, s.remoteText = remoteCode, remoteText
	s.state = stateClosed
	return true, CloseNormalClosure, remoteCode, remoteText
}

// SendPing implements the auto-ping timer's scheduled tick. It returns
// the 16-byte payload to emit when action is actionSendPing, or
// actionTimeoutClose if a previous ping went unanswered for a full
// period.
func (s *stateMachine) SendPing(now time.Time) (action pingAction, payload [16]byte) {
	if !s.isOpen() {
		return actionNone, payload
	}

	if s.havePing {
		if now.Sub(s.lastPingTime) >= s.pingPeriod {
			return actionTimeoutClose, payload
		}
		return actionNone, payload
	}

	if _, err := randReaderRead(s.pingPayload[:]); err != nil {
		return actionNone, payload
	}
	s.havePing = true
	s.lastPingTime = now
	return actionSendPing, s.pingPayload
}

// ReceivedPong implements the received_pong(payload) input. Out-of-order
// or unsolicited pongs are tolerated silently, per RFC 6455 section 5.5.3.
func (s *stateMachine) ReceivedPong(payload []byte) {
	if !s.isOpen() || !s.havePing {
		return
	}
	if len(payload) == len(s.pingPayload) && [16]byte(payload) == s.pingPayload {
		s.havePing = false
	}
}

// ReceivedPing implements the received_ping(payload) input: reply with a
// pong carrying the same payload while open or closing.
func (s *stateMachine) ReceivedPing() pingAction {
	if s.isOpen() || s.isClosing() {
		return actionSendPong
	}
	return actionNone
}

func randReaderRead(p []byte) (int, error) {
	return randReader.Read(p)
}
