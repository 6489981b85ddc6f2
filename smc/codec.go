package smc

import "encoding/binary"

// PutBE writes the low width bytes of v into buf in big endian order.
// width must be 1, 2 or 4 and buf must hold at least width bytes.
func PutBE(buf []byte, v uint32, width int) {
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(buf, v)
	default:
		panic("smc: codec width must be 1, 2 or 4")
	}
}

// EncodeBE returns the low width bytes of v in big endian order.
func EncodeBE(v uint32, width int) []byte {
	buf := make([]byte, width)
	PutBE(buf, v, width)
	return buf
}

// DecodeBE is the inverse of EncodeBE.
func DecodeBE(b []byte, width int) uint32 {
	switch width {
	case 1:
		return uint32(b[0])
	case 2:
		return uint32(binary.BigEndian.Uint16(b))
	case 4:
		return binary.BigEndian.Uint32(b)
	}
	panic("smc: codec width must be 1, 2 or 4")
}

// EncodeInt32 encodes a signed 32-bit field.
func EncodeInt32(v int32) []byte {
	return EncodeBE(uint32(v), 4)
}

// DecodeInt32 decodes a signed 32-bit field.
func DecodeInt32(b []byte) int32 {
	return int32(DecodeBE(b, 4))
}

// PutUint16Array creates a sequence of big endian uint16 data.
func PutUint16Array(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

// Uint16Array unpacks 16 bit data values from a buffer
// (in big endian format)
func Uint16Array(data []byte) []uint16 {
	ret := make([]uint16, len(data)/2)
	for i := range ret {
		ret[i] = binary.BigEndian.Uint16(data[i*2 : i*2+2])
	}
	return ret
}

// WordOrder selects how two consecutive 16-bit registers form a 32-bit
// value.
type WordOrder int

// Defined word orders
const (
	// HighWordFirst puts the most significant word at the lower register
	// address. This matches the byte layout of step records.
	HighWordFirst WordOrder = iota
	LowWordFirst
)

// Join combines two consecutive registers into a signed 32-bit value.
func (o WordOrder) Join(first, second uint16) int32 {
	if o == LowWordFirst {
		first, second = second, first
	}
	return int32(uint32(first)<<16 | uint32(second))
}

// Split is the inverse of Join.
func (o WordOrder) Split(v int32) (first, second uint16) {
	hi, lo := uint16(uint32(v)>>16), uint16(uint32(v))
	if o == LowWordFirst {
		return lo, hi
	}
	return hi, lo
}

func (o WordOrder) String() string {
	if o == LowWordFirst {
		return "low-first"
	}
	return "high-first"
}

// ParseWordOrder parses "high-first" or "low-first". An empty string
// selects HighWordFirst.
func ParseWordOrder(s string) (WordOrder, error) {
	switch s {
	case "", "high-first":
		return HighWordFirst, nil
	case "low-first":
		return LowWordFirst, nil
	}
	return HighWordFirst, rangeErrorf("unknown word order %q", s)
}
