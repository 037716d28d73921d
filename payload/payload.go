// Package payload encodes one averaged load-cell sample into the fixed-size
// uplink frame and back.
//
// The frame carries the signed 32-bit sample as four octets. Which octet goes
// first is a ByteOrder chosen at configuration time; the receiver must decode
// with the same order.
package payload

import (
	"errors"
	"strings"

	"scalenode-go/x/conv"
)

// Len is the frame size in bytes. It does not depend on the sample value.
const Len = 4

// Payload is one encoded sample.
type Payload [Len]byte

// ByteOrder selects the octet layout of a Payload.
type ByteOrder uint8

const (
	// LittleEndian puts the least significant octet at offset 0.
	LittleEndian ByteOrder = iota
	// BigEndian puts the most significant octet at offset 0.
	BigEndian
)

var (
	ErrByteOrder = errors.New("payload: unknown byte order")
	ErrLength    = errors.New("payload: frame must be 4 bytes")
)

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "le"
	case BigEndian:
		return "be"
	default:
		return "unknown"
	}
}

// Valid reports whether o is one of the defined orders.
func (o ByteOrder) Valid() bool { return o == LittleEndian || o == BigEndian }

// ParseByteOrder accepts "le", "little", "little-endian" and the big-endian
// equivalents, case-insensitively. Empty selects LittleEndian.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "le", "little", "little-endian", "lsb":
		return LittleEndian, nil
	case "be", "big", "big-endian", "msb":
		return BigEndian, nil
	}
	return 0, ErrByteOrder
}

// Encode splits sample into octets. Octet i holds bits [8i, 8i+8); it is
// written at offset i for LittleEndian and at Len-1-i for BigEndian.
// An unknown order encodes as LittleEndian.
func Encode(sample int32, order ByteOrder) Payload {
	var p Payload
	u := uint32(sample)
	for i := 0; i < Len; i++ {
		b := byte(u >> (8 * i))
		if order == BigEndian {
			p[Len-1-i] = b
		} else {
			p[i] = b
		}
	}
	return p
}

// Decode is the inverse of Encode for the same order.
func Decode(p Payload, order ByteOrder) int32 {
	var u uint32
	for i := 0; i < Len; i++ {
		var b byte
		if order == BigEndian {
			b = p[Len-1-i]
		} else {
			b = p[i]
		}
		u |= uint32(b) << (8 * i)
	}
	return int32(u)
}

// FromBytes converts a received frame. Anything but exactly Len bytes is
// rejected.
func FromBytes(b []byte) (Payload, error) {
	var p Payload
	if len(b) != Len {
		return p, ErrLength
	}
	copy(p[:], b)
	return p, nil
}

// Bytes returns the frame as a slice backed by p.
func (p *Payload) Bytes() []byte { return p[:] }

// String is the uppercase hex form, e.g. "04030201".
func (p Payload) String() string {
	return string(conv.HexUpper(make([]byte, 0, 2*Len), p[:]))
}
