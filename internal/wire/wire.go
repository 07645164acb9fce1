// Package wire holds the byte-level helpers shared by the frame types:
// big-endian integer conversion and the padding helpers used by DATA and
// HEADERS frames. It has no knowledge of streams, windows or priority —
// only of how HTTP/2 puts bytes on and off the wire.
package wire

import (
	"crypto/rand"
	"fmt"

	"github.com/valyala/fastrand"
)

func Uint24ToBytes(b []byte, n uint32) {
	_ = b[2] // bound check hint
	b[0] = byte(n >> 16)
	b[1] = byte(n >> 8)
	b[2] = byte(n)
}

func BytesToUint24(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func Uint32ToBytes(b []byte, n uint32) {
	_ = b[3]
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func AppendUint32Bytes(dst []byte, n uint32) []byte {
	return append(dst, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func BytesToUint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// Resize grows b (reusing its backing array where possible) to neededLen.
func Resize(b []byte, neededLen int) []byte {
	b = b[:cap(b)]
	if n := neededLen - len(b); n > 0 {
		b = append(b, make([]byte, n)...)
	}
	return b[:neededLen]
}

// CutPadding strips the pad-length byte and trailing padding from payload,
// as described by the PADDED flag (RFC 7540 §6.1, §6.2).
func CutPadding(payload []byte, length int) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("wire: padded frame with empty payload")
	}

	pad := int(payload[0])
	if length-pad-1 < 0 || len(payload) < length-pad-1 {
		return nil, fmt.Errorf("wire: padding %d exceeds frame length %d", pad, length)
	}

	return payload[1 : length-pad], nil
}

// AddPadding appends between 9 and 255 bytes of random padding to b and
// prefixes the pad-length byte, mirroring the http2utils helper.
func AddPadding(b []byte) []byte {
	n := int(fastrand.Uint32n(256-9)) + 9
	nn := len(b)

	b = Resize(b, nn+n+1)
	copy(b[1:], b[:nn])

	b[0] = uint8(n)

	_, _ = rand.Read(b[nn+1 : nn+1+n])

	return b
}
