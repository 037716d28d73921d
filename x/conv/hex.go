package conv

import "errors"

var (
	ErrHexLength = errors.New("conv: hex length mismatch")
	ErrHexDigit  = errors.New("conv: invalid hex digit")
)

const hexd = "0123456789ABCDEF"

// U32Hex writes 8-digit uppercase hex without 0x, zero-padded.
func U32Hex(buf []byte, n uint32) []byte {
	if len(buf) < 8 {
		return buf[:0]
	}
	i := len(buf)
	for j := 0; j < 8; j++ {
		i--
		buf[i] = hexd[n&0xF]
		n >>= 4
	}
	return buf[i:]
}

// HexUpper appends the uppercase hex form of b to dst.
func HexUpper(dst, b []byte) []byte {
	for _, c := range b {
		dst = append(dst, hexd[c>>4], hexd[c&0x0F])
	}
	return dst
}

// DecodeHex fills dst from s, which must hold exactly 2*len(dst) hex digits.
// No allocations; dst is left untouched on error.
func DecodeHex(dst []byte, s string) error {
	if len(s) != 2*len(dst) {
		return ErrHexLength
	}
	for i := 0; i < len(s); i += 2 {
		if _, ok := nibble(s[i]); !ok {
			return ErrHexDigit
		}
		if _, ok := nibble(s[i+1]); !ok {
			return ErrHexDigit
		}
	}
	for i := range dst {
		hi, _ := nibble(s[2*i])
		lo, _ := nibble(s[2*i+1])
		dst[i] = hi<<4 | lo
	}
	return nil
}

func nibble(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
