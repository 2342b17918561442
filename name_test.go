package j1939

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameAddressCapable(t *testing.T) {
	// byte 7 (the top byte of the little-endian NAME) has its MSB set
	// when the device is arbitrary-address-capable.
	capable := NameFromBytes([]byte{0, 0, 0, 0, 0, 0xFF, 2, 0xA0})
	assert.True(t, capable.AddressCapable())

	notCapable := NameFromBytes([]byte{0, 0, 0, 0, 0, 0xFF, 2, 0x20})
	assert.False(t, notCapable.AddressCapable())
}

func TestNameOrdering(t *testing.T) {
	low := Name(1)
	high := Name(2)
	assert.True(t, low < high)
	assert.True(t, high > low)
}

func TestNameBytesRoundTrip(t *testing.T) {
	n := Name(0x0123456789ABCDEF)
	b := n.Bytes()
	assert.Equal(t, n, NameFromBytes(b[:]))
}
