package websocket

import (
	"errors"
	"slices"
)

// Sentinel errors returned by the frame codec and handshake negotiator.
// Each maps to a close code via errorCloseCode when the session needs to
// translate a local failure into a close frame.
var (
	ErrInvalidFrameLength        = errors.New("websocket: frame length exceeds max_frame_size")
	ErrMultiByteControlFrameLen  = errors.New("websocket: control frame payload length uses multi-byte form")
	ErrFragmentedControlFrame    = errors.New("websocket: control frame is fragmented")
	ErrReservedOpcode            = errors.New("websocket: reserved opcode")
	ErrReservedBits              = errors.New("websocket: RSV bit set without a negotiated extension")
	ErrUnexpectedContinuation    = errors.New("websocket: continuation frame without a preceding initial frame")
	ErrExpectedContinuation      = errors.New("websocket: expected continuation frame")
	ErrMessageInProgress         = errors.New("websocket: initial frame received before previous message finished")
	ErrMessageTooLarge           = errors.New("websocket: message exceeds max_size")
	ErrInvalidClosePayload       = errors.New("websocket: invalid close frame payload")
	ErrInvalidUTF8               = errors.New("websocket: text payload is not valid UTF-8")
	ErrDecompressionFailed       = errors.New("websocket: permessage-deflate decompression failed")
	ErrDecompressedTooLarge      = errors.New("websocket: decompressed payload exceeds max_decompressed_size")
	ErrUnmaskedClientFrame       = errors.New("websocket: server received an unmasked frame")
	ErrMaskedServerFrame         = errors.New("websocket: client received a masked frame")
	ErrBadHandshake              = errors.New("websocket: bad handshake")
	ErrCloseSent                 = errors.New("websocket: close already sent")
	ErrWriteAfterClose           = errors.New("websocket: write after close")
	ErrSingleIterator            = errors.New("websocket: Messages may only be called once per session")
	ErrInvalidMessageType        = errors.New("websocket: invalid message type")
	ErrInvalidControlFrame       = errors.New("websocket: invalid control message type")
	ErrControlFramePayloadTooBig = errors.New("websocket: control frame payload exceeds 125 bytes")
)

// CloseError is returned by a MessageStream's Err to report how the
// connection was closed: the code and reason of the peer's close frame
// (CloseProtocolError if that frame's payload was invalid), or the code
// this side sent when it closed on a ping timeout.
type CloseError struct {
	Code CloseCode
	Text string
}

func (e *CloseError) Error() string {
	if e.Text == "" {
		return "websocket: close " + e.Code.String()
	}
	return "websocket: close " + e.Code.String() + ": " + e.Text
}

// IsCloseError reports whether err is a *CloseError carrying one of codes.
func IsCloseError(err error, codes ...CloseCode) bool {
	var closeErr *CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return slices.Contains(codes, closeErr.Code)
}

// IsUnexpectedCloseError reports whether err is a *CloseError carrying a
// code NOT in expectedCodes.
func IsUnexpectedCloseError(err error, expectedCodes ...CloseCode) bool {
	var closeErr *CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return !slices.Contains(expectedCodes, closeErr.Code)
}

// errorCloseCode maps a local protocol failure to the close code the
// session must send in response, per RFC 6455 section 7.4.1's status
// code definitions.
func errorCloseCode(err error) CloseCode {
	switch {
	case errors.Is(err, ErrInvalidFrameLength),
		errors.Is(err, ErrMessageTooLarge):
		return CloseMessageTooBig
	case errors.Is(err, ErrInvalidUTF8):
		return CloseInvalidFramePayloadData
	case errors.Is(err, ErrDecompressionFailed),
		errors.Is(err, ErrDecompressedTooLarge):
		return CloseUnsupportedData
	default:
		return CloseProtocolError
	}
}
