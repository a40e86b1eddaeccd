package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExtension struct {
	name        string
	order       *[]string
	ownsRSVBits map[int]bool
}

func (e *recordingExtension) Name() string { return e.name }

func (e *recordingExtension) ProcessReceived(f Frame) (Frame, error) {
	*e.order = append(*e.order, "recv:"+e.name)
	return f, nil
}

func (e *recordingExtension) ProcessToSend(f Frame) (Frame, error) {
	*e.order = append(*e.order, "send:"+e.name)
	return f, nil
}

func (e *recordingExtension) Shutdown() {
	*e.order = append(*e.order, "shutdown:"+e.name)
}

func (e *recordingExtension) OwnsRSVBit(bit int) bool { return e.ownsRSVBits[bit] }

func TestPipelineProcessToSendOrdersForward(t *testing.T) {
	var order []string
	p := newPipeline([]Extension{
		&recordingExtension{name: "a", order: &order},
		&recordingExtension{name: "b", order: &order},
	})

	_, err := p.processToSend(Frame{Opcode: OpText})
	require.NoError(t, err)
	assert.Equal(t, []string{"send:a", "send:b"}, order)
}

func TestPipelineProcessReceivedOrdersReverse(t *testing.T) {
	var order []string
	p := newPipeline([]Extension{
		&recordingExtension{name: "a", order: &order},
		&recordingExtension{name: "b", order: &order},
	})

	_, err := p.processReceived(Frame{Opcode: OpText})
	require.NoError(t, err)
	assert.Equal(t, []string{"recv:b", "recv:a"}, order)
}

func TestPipelineShutdownCallsAll(t *testing.T) {
	var order []string
	p := newPipeline([]Extension{
		&recordingExtension{name: "a", order: &order},
		&recordingExtension{name: "b", order: &order},
	})

	p.shutdown()
	assert.Equal(t, []string{"shutdown:a", "shutdown:b"}, order)
}

func TestPipelineHasReservedBitOwner(t *testing.T) {
	var order []string
	p := newPipeline([]Extension{
		&recordingExtension{name: "a", order: &order, ownsRSVBits: map[int]bool{1: true}},
	})

	assert.True(t, p.hasReservedBitOwner(1))
	assert.False(t, p.hasReservedBitOwner(2))
}

func TestPipelineHasReservedBitOwnerEmpty(t *testing.T) {
	p := newPipeline(nil)
	assert.False(t, p.hasReservedBitOwner(1))
}
