package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest(PGNAddressClaim, AddressNull, AddressGlobal)
	frame := req.AsFrame()

	assert.Equal(t, []byte{0x00, 0xEE, 0x00}, frame.Data)

	parsed, err := RequestFromFrame(frame)
	assert.NoError(t, err)
	assert.Equal(t, req, parsed)
}

func TestRequestFromFrameRejectsWrongPGN(t *testing.T) {
	frame := NewFrame(NewHeaderBroadcast(0xFEB2, 0, 1), []byte{0, 0, 0})
	_, err := RequestFromFrame(frame)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestAckRoundTrip(t *testing.T) {
	gfv := uint8(7)
	ack := NewAck(AckNegative, &gfv, PGNAddressClaim, 0x21, 0x90)
	frame := ack.AsFrame()

	parsed, err := AckFromFrame(frame)
	assert.NoError(t, err)
	assert.Equal(t, ack, parsed)
}

func TestAckOtherType(t *testing.T) {
	ack := NewAck(AckPositive, nil, PGNAddressClaim, 0x21, 0x90)
	ack.AckTypeOther = &AckTypeOther{Raw: 250}
	frame := ack.AsFrame()

	parsed, err := AckFromFrame(frame)
	assert.NoError(t, err)
	assert.Equal(t, uint8(250), parsed.AckTypeOther.Raw)
	assert.Nil(t, parsed.GroupFunctionValue)
}
