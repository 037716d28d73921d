// Package flash keeps an nvs.Store in a ring of erase blocks on a block
// device. On rp2040 builds the device is machine.Flash.
//
// Every flush writes the whole record to the block after the newest one and
// erases only that block, so each block sees one erase per Blocks writes.
// Open keeps the valid record with the highest sequence number; a torn write
// leaves the previous record in place.
//
// Layout: "NVS2" | u32 seq | u16 count | count × (u8 keylen | key | u16 vallen
// | val) | u32 additive checksum of everything before it. Little-endian.
package flash

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"scalenode-go/nvs"
)

// BlockDevice is the subset of tinygo's machine.Flash used here.
type BlockDevice interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() int64
	WriteBlockSize() int64
	EraseBlockSize() int64
	EraseBlocks(start, length int64) error
}

// DefaultBlocks is the ring length used when the device has room for it.
const DefaultBlocks = 8

var (
	ErrTooLarge = errors.New("nvs/flash: data exceeds erase block")
	ErrCorrupt  = errors.New("nvs/flash: corrupt record")
	ErrNoSpace  = errors.New("nvs/flash: device smaller than one erase block")
)

var magic = [4]byte{'N', 'V', 'S', '2'}

type Store struct {
	mu     sync.Mutex
	dev    BlockDevice
	blocks int64
	cur    int64 // block holding the newest record, -1 when blank
	seq    uint32
	m      map[string][]byte
}

var _ nvs.Store = (*Store)(nil)

// Open scans the first blocks erase blocks of dev (DefaultBlocks when
// blocks <= 0, capped by the device size) and loads the newest valid record.
// A blank or fully corrupt ring yields an empty store.
func Open(dev BlockDevice, blocks int) (*Store, error) {
	ebs := dev.EraseBlockSize()
	avail := dev.Size() / ebs
	if avail < 1 {
		return nil, ErrNoSpace
	}
	n := int64(blocks)
	if n <= 0 {
		n = DefaultBlocks
	}
	n = min(n, avail)

	s := &Store{dev: dev, blocks: n, cur: -1, m: make(map[string][]byte)}
	buf := make([]byte, ebs)
	for b := int64(0); b < n; b++ {
		if _, err := dev.ReadAt(buf, b*ebs); err != nil {
			return nil, err
		}
		seq, m, err := decode(buf)
		if err != nil {
			continue
		}
		if s.cur < 0 || newer(seq, s.seq) {
			s.cur, s.seq, s.m = b, seq, m
		}
	}
	return s, nil
}

// newer compares sequence numbers modulo 2^32.
func newer(a, b uint32) bool { return int32(a-b) > 0 }

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, nvs.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Put(key string, val []byte) error {
	if len(key) > 0xFF || len(val) > 0xFFFF {
		return ErrTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, had := s.m[key]
	s.m[key] = append([]byte(nil), val...)
	if err := s.flush(); err != nil {
		if had {
			s.m[key] = old
		} else {
			delete(s.m, key)
		}
		return err
	}
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.m[key]
	if !ok {
		return nil
	}
	delete(s.m, key)
	if err := s.flush(); err != nil {
		s.m[key] = old
		return err
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) flush() error {
	ebs := s.dev.EraseBlockSize()
	seq := s.seq + 1
	rec := encode(seq, s.m)
	if int64(len(rec)) > ebs {
		return ErrTooLarge
	}
	if wbs := s.dev.WriteBlockSize(); wbs > 1 {
		if pad := int64(len(rec)) % wbs; pad != 0 {
			rec = append(rec, make([]byte, wbs-pad)...)
		}
	}
	next := (s.cur + 1) % s.blocks
	if err := s.dev.EraseBlocks(next, 1); err != nil {
		return err
	}
	if _, err := s.dev.WriteAt(rec, next*ebs); err != nil {
		return err
	}
	s.cur, s.seq = next, seq
	return nil
}

func encode(seq uint32, m map[string][]byte) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := append([]byte(nil), magic[:]...)
	out = binary.LittleEndian.AppendUint32(out, seq)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(keys)))
	for _, k := range keys {
		v := m[k]
		out = append(out, byte(len(k)))
		out = append(out, k...)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(v)))
		out = append(out, v...)
	}
	return binary.LittleEndian.AppendUint32(out, checksum(out))
}

func decode(b []byte) (uint32, map[string][]byte, error) {
	if len(b) < 10 || [4]byte(b[:4]) != magic {
		return 0, nil, ErrCorrupt
	}
	seq := binary.LittleEndian.Uint32(b[4:8])
	n := int(binary.LittleEndian.Uint16(b[8:10]))
	p := 10
	m := make(map[string][]byte, n)
	for i := 0; i < n; i++ {
		if p+1 > len(b) {
			return 0, nil, ErrCorrupt
		}
		kl := int(b[p])
		p++
		if p+kl+2 > len(b) {
			return 0, nil, ErrCorrupt
		}
		k := string(b[p : p+kl])
		p += kl
		vl := int(binary.LittleEndian.Uint16(b[p : p+2]))
		p += 2
		if p+vl > len(b) {
			return 0, nil, ErrCorrupt
		}
		m[k] = append([]byte(nil), b[p:p+vl]...)
		p += vl
	}
	if p+4 > len(b) || binary.LittleEndian.Uint32(b[p:p+4]) != checksum(b[:p]) {
		return 0, nil, ErrCorrupt
	}
	return seq, m, nil
}

func checksum(b []byte) uint32 {
	var s uint32
	for i, c := range b {
		s += uint32(c) * uint32(i%251+1)
	}
	return s
}
