package conv

import (
	"bytes"
	"testing"
)

func TestDecodeHex(t *testing.T) {
	var eui [8]byte
	if err := DecodeHex(eui[:], "c496422c5c2a7f78"); err != nil {
		t.Fatal(err)
	}
	want := []byte{0xC4, 0x96, 0x42, 0x2C, 0x5C, 0x2A, 0x7F, 0x78}
	if !bytes.Equal(eui[:], want) {
		t.Fatalf("got % X", eui)
	}

	var key [16]byte
	if err := DecodeHex(key[:], "27E52EDCD7015D465B955173AC8EB150"); err != nil {
		t.Fatal(err)
	}
	if key[0] != 0x27 || key[15] != 0x50 {
		t.Fatalf("got % X", key)
	}
}

func TestDecodeHexErrors(t *testing.T) {
	var b [2]byte
	if err := DecodeHex(b[:], "abc"); err != ErrHexLength {
		t.Fatalf("err = %v", err)
	}
	if err := DecodeHex(b[:], "zz00"); err != ErrHexDigit {
		t.Fatalf("err = %v", err)
	}
	if b != [2]byte{} {
		t.Fatal("dst modified on error")
	}
}

func TestHexUpper(t *testing.T) {
	if got := string(HexUpper(nil, []byte{0x05, 0xC2, 0xFF})); got != "05C2FF" {
		t.Fatalf("got %q", got)
	}
	var buf [8]byte
	if got := string(U32Hex(buf[:], 0x1A2B)); got != "00001A2B" {
		t.Fatalf("got %q", got)
	}
}
