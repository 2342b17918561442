package serialcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSLCANLineDecodesExtendedFrame(t *testing.T) {
	id, data, err := parseSLCANLine("T18EEFF85880000000FF02200D\r")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x18EEFF85), id)
	assert.Equal(t, []byte{0x80, 0x00, 0x00, 0x00, 0xFF, 0x02, 0x20, 0x0D}, data)
}

func TestParseSLCANLineRejectsNonExtendedLine(t *testing.T) {
	_, _, err := parseSLCANLine("t1230\r")
	assert.Error(t, err)
}

func TestParseSLCANLineRejectsTruncatedPayload(t *testing.T) {
	_, _, err := parseSLCANLine("T18EEFF858\r")
	assert.Error(t, err)
}
