package j1939

import "encoding/binary"

// Name is the opaque 64-bit device identity carried on PGNAddressClaim.
// Its internal field layout (ISO identity number, manufacturer code,
// function, device/vehicle instance, ...) is outside this engine's concern;
// the single operation that matters for address arbitration is unsigned
// numeric comparison, where a lower NAME wins.
type Name uint64

// AddressCapable reports whether this NAME's "arbitrary address capable"
// bit is set, i.e. whether the owning Control Function may automatically
// re-select its address (from 128-247) on a claim conflict rather than
// going straight to CannotClaim.
func (n Name) AddressCapable() bool {
	return n&(1<<63) != 0
}

// Bytes returns the 8-byte little-endian wire representation used on
// PGNAddressClaim.
func (n Name) Bytes() [8]byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(n))
	return b
}

// NameFromBytes parses the 8-byte little-endian NAME payload carried on
// PGNAddressClaim.
func NameFromBytes(b []byte) Name {
	return Name(binary.LittleEndian.Uint64(b))
}
