package bplist

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"unicode/utf16"
)

func decodeText(b []byte) string {
	return string(b)
}

// parseUint reads a big-endian unsigned integer of at most 8 bytes.
func parseUint(b []byte) (uint64, error) {
	if len(b) > 8 {
		return 0, fmt.Errorf("%w: %d bytes", ErrUnhandledIntegerWidth, len(b))
	}
	var n uint64
	for _, c := range b {
		n = n<<8 | uint64(c)
	}
	return n, nil
}

// parseUnsignedInt reads a big-endian unsigned integer of any width. Widths up
// to 8 bytes use native arithmetic; wider payloads (16 bytes in practice) are
// kept at full precision.
func parseUnsignedInt(b []byte) Integer {
	if len(b) <= 8 {
		n, _ := parseUint(b)
		return Integer{width: len(b), u: n}
	}
	return Integer{width: len(b), b: new(big.Int).SetBytes(b)}
}

// parseFloat returns a float32 for 4-byte payloads and a float64 for 8-byte
// payloads.
func parseFloat(b []byte) (interface{}, error) {
	switch len(b) {
	case 4:
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnhandledFloatLength, len(b))
}

func splitNibbles(b int) (uint8, uint8, error) {
	if b < 0x00 || b > 0xFF {
		return 0, 0, fmt.Errorf("%w: %d", ErrByteOutOfRange, b)
	}
	return uint8(b >> 4), uint8(b & 0x0F), nil
}

// decodeUTF16BE reads big-endian 16-bit code units and transcodes them to a
// UTF-8 string. A surrogate pair becomes its single code point. An unpaired
// surrogate has no UTF-8 form and becomes U+FFFD, so such input does not
// survive a round trip.
func decodeUTF16BE(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("%w: odd UTF-16 byte length %d", ErrObjectOutOfBounds, len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}
