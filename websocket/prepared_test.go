package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreparedMessageRejectsBadType(t *testing.T) {
	_, err := NewPreparedMessage(MessageType(0), []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidMessageType)
}

func TestPreparedMessageServerFrameCachesBytes(t *testing.T) {
	pm, err := NewPreparedMessage(TextMessage, []byte("cached"))
	require.NoError(t, err)

	first := pm.serverFrame()
	second := pm.serverFrame()
	assert.Same(t, &first[0], &second[0])
}

type fakePreparedSink struct {
	fakeSink
	isServer   bool
	extensions int
	rawSent    []byte
}

func (f *fakePreparedSink) preparedFrame(pm *PreparedMessage) ([]byte, bool) {
	if !f.isServer || f.extensions != 0 {
		return nil, false
	}
	return pm.serverFrame(), true
}

func (f *fakePreparedSink) sendRaw(raw []byte) error {
	f.rawSent = raw
	return nil
}

func TestWritePreparedMessageUsesFastPathForPlainServer(t *testing.T) {
	sink := &fakePreparedSink{isServer: true}
	w := newWriter(sink, true)

	pm, err := NewPreparedMessage(TextMessage, []byte("fast"))
	require.NoError(t, err)

	require.NoError(t, w.WritePreparedMessage(pm))
	assert.NotEmpty(t, sink.rawSent)
	assert.Empty(t, sink.frames)
}

func TestWritePreparedMessageFallsBackForClientRole(t *testing.T) {
	sink := &fakePreparedSink{isServer: false}
	w := newWriter(sink, false)

	pm, err := NewPreparedMessage(TextMessage, []byte("fallback"))
	require.NoError(t, err)

	require.NoError(t, w.WritePreparedMessage(pm))
	require.Len(t, sink.frames, 1)
	assert.Equal(t, OpText, sink.frames[0].Opcode)
	assert.Nil(t, sink.rawSent)
}

func TestWritePreparedMessageFallsBackWithExtensions(t *testing.T) {
	sink := &fakePreparedSink{isServer: true, extensions: 1}
	w := newWriter(sink, true)

	pm, err := NewPreparedMessage(BinaryMessage, []byte{1, 2})
	require.NoError(t, err)

	require.NoError(t, w.WritePreparedMessage(pm))
	require.Len(t, sink.frames, 1)
	assert.Equal(t, OpBinary, sink.frames[0].Opcode)
}
