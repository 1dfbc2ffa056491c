package utils

import "encoding/binary"

// Uint16FromBytesBE assembles a big-endian word from the first two bytes of b.
func Uint16FromBytesBE(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}
