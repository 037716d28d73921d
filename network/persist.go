package network

import (
	"bytes"
	"encoding/binary"
	"errors"

	"scalenode-go/nvs"
)

// NVS keys shared by all stacks.
const (
	KeyCredentials = "lorawan.creds"
	KeySession     = "lorawan.session"
)

// Session is what a stack needs to send again without rejoining.
type Session struct {
	DevAddr  [4]byte
	NwkSKey  [16]byte
	AppSKey  [16]byte
	FCntUp   uint32
	FCntDown uint32
}

const sessionVersion = 1

var ErrSessionRecord = errors.New("network: bad session record")

// MarshalBinary encodes s as a fixed 46-byte little-endian record.
func (s Session) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, 46)
	b = append(b, 'S', sessionVersion)
	b = append(b, s.DevAddr[:]...)
	b = append(b, s.NwkSKey[:]...)
	b = append(b, s.AppSKey[:]...)
	b = binary.LittleEndian.AppendUint32(b, s.FCntUp)
	b = binary.LittleEndian.AppendUint32(b, s.FCntDown)
	return b, nil
}

func (s *Session) UnmarshalBinary(b []byte) error {
	if len(b) != 46 || b[0] != 'S' || b[1] != sessionVersion {
		return ErrSessionRecord
	}
	p := 2
	p += copy(s.DevAddr[:], b[p:])
	p += copy(s.NwkSKey[:], b[p:])
	p += copy(s.AppSKey[:], b[p:])
	s.FCntUp = binary.LittleEndian.Uint32(b[p:])
	s.FCntDown = binary.LittleEndian.Uint32(b[p+4:])
	return nil
}

func (c Credentials) bytes() []byte {
	b := make([]byte, 0, 32)
	b = append(b, c.DevEUI[:]...)
	b = append(b, c.AppEUI[:]...)
	return append(b, c.AppKey[:]...)
}

// StoreCredentials writes c unless the store already holds the same bytes.
// New credentials invalidate any persisted session. It reports whether
// anything was written.
func StoreCredentials(st nvs.Store, c Credentials) (bool, error) {
	want := c.bytes()
	have, err := st.Get(KeyCredentials)
	switch {
	case err == nil && bytes.Equal(have, want):
		return false, nil
	case err != nil && !errors.Is(err, nvs.ErrNotFound):
		return false, err
	}
	if err := st.Delete(KeySession); err != nil {
		return false, err
	}
	return true, st.Put(KeyCredentials, want)
}

// LoadCredentials returns the provisioned credentials.
func LoadCredentials(st nvs.Store) (Credentials, error) {
	var c Credentials
	b, err := st.Get(KeyCredentials)
	if err != nil {
		return c, err
	}
	if len(b) != 32 {
		return c, ErrCredentials
	}
	copy(c.DevEUI[:], b[:8])
	copy(c.AppEUI[:], b[8:16])
	copy(c.AppKey[:], b[16:])
	return c, nil
}

// SaveSession persists s.
func SaveSession(st nvs.Store, s Session) error {
	b, _ := s.MarshalBinary()
	return st.Put(KeySession, b)
}

// LoadSession returns the persisted session, or ok=false when there is none
// or it does not decode.
func LoadSession(st nvs.Store) (Session, bool) {
	var s Session
	b, err := st.Get(KeySession)
	if err != nil {
		return s, false
	}
	if s.UnmarshalBinary(b) != nil {
		return Session{}, false
	}
	return s, true
}

// ClearSession forgets the persisted session.
func ClearSession(st nvs.Store) error { return st.Delete(KeySession) }
