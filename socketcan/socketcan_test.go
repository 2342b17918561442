package socketcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConnectionRejectsUnknownInterface(t *testing.T) {
	_, err := NewConnection("this-interface-does-not-exist")
	assert.Error(t, err)
}

func TestNewDriverOpenRejectsUnknownInterface(t *testing.T) {
	d := NewDriver("this-interface-does-not-exist")
	err := d.Open()
	assert.Error(t, err)
}

// sudo ip link set can0 down && sudo /sbin/ip link set can0 up type can bitrate 250000
//
// xTest-prefixed functions are disabled: they need a real CAN interface and
// are run manually against hardware, not as part of the normal test suite.

func xTestDriverRoundTrip(t *testing.T) {
	d := NewDriver("can0")
	if err := d.Open(); err != nil {
		assert.NoError(t, err)
		return
	}
	defer d.Close()

	if err := d.Transmit(0x18EEFF21, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		assert.NoError(t, err)
	}
}
