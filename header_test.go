package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func u8(v uint8) *uint8 { return &v }

func TestHeaderFromCANID(t *testing.T) {
	var testCases = []struct {
		name   string
		canID  uint32
		expect Header
	}{
		{
			name:  "ok, broadcast",
			canID: 0x00FEB201,
			expect: Header{
				PGN:                0xFEB2,
				Priority:           0,
				SourceAddress:      0x01,
				DestinationAddress: nil,
			},
		},
		{
			name:  "ok, peer to peer",
			canID: 0x00DC2080,
			expect: Header{
				PGN:                0xDC00,
				Priority:           0,
				SourceAddress:      0x80,
				DestinationAddress: u8(0x20),
			},
		},
		{
			name:  "ok, addressclaim",
			canID: 0x18EEFF85,
			expect: Header{
				PGN:                PGNAddressClaim,
				Priority:           6,
				SourceAddress:      0x85,
				DestinationAddress: u8(0xFF),
			},
		},
		{
			name:  "ok, from frame.rs broadcast_header",
			canID: 0x3FF2032,
			expect: Header{
				PGN:                0x3FF20,
				Priority:           0,
				SourceAddress:      0x32,
				DestinationAddress: nil,
			},
		},
		{
			name:  "ok, from frame.rs p2p_header",
			canID: 0x142F1810,
			expect: Header{
				PGN:                0x02F00,
				Priority:           5,
				SourceAddress:      0x10,
				DestinationAddress: u8(0x18),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			header := HeaderFromCANID(tc.canID)
			assert.Equal(t, tc.expect, header)
			// round trip law: decode(encode(h)) == h and encode(decode(id)) == id
			assert.Equal(t, tc.canID, header.CANID())
		})
	}
}

func TestHeaderCANIDRoundTrip(t *testing.T) {
	headers := []Header{
		NewHeaderBroadcast(0xFEB2, 3, 0x21),
		NewHeaderTo(0xDF00, 6, 0x90, 0x9B),
		NewHeaderTo(PGNAddressClaim, 6, 0x85, AddressGlobal),
	}
	for _, h := range headers {
		assert.Equal(t, h, HeaderFromCANID(h.CANID()))
	}
}

func TestPGNIsBroadcast(t *testing.T) {
	assert.True(t, PGN(0xFEB2).IsBroadcast())
	assert.True(t, PGN(0xFF00).IsBroadcast())
	assert.False(t, PGN(0xDF00).IsBroadcast())
	assert.False(t, PGN(PGNAddressClaim).IsBroadcast())
}

func TestNewFrameCopiesData(t *testing.T) {
	data := []byte{1, 2, 3}
	f := NewFrame(NewHeaderBroadcast(0xFEB2, 0, 1), data)
	data[0] = 0xFF
	assert.Equal(t, byte(1), f.Data[0])
}
