// Package nvs is the non-volatile key/value storage the network stack keeps
// its credentials and session in across deep sleep.
package nvs

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("nvs: key not found")

// Store is a small persistent map. Values are copied on Put and Get.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, val []byte) error
	Delete(key string) error
	Close() error
}

// Memory is a volatile Store for tests and the simulated node. It counts
// writes so tests can check that nothing was rewritten.
type Memory struct {
	mu     sync.Mutex
	m      map[string][]byte
	writes int
}

func NewMemory() *Memory { return &Memory{m: make(map[string][]byte)} }

func (s *Memory) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Memory) Put(key string, val []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), val...)
	s.writes++
	return nil
}

func (s *Memory) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		delete(s.m, key)
		s.writes++
	}
	return nil
}

func (s *Memory) Close() error { return nil }

// Writes returns the number of mutating calls that changed the store.
func (s *Memory) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
