// Package leveldb backs nvs.Store with a LevelDB directory on host builds.
package leveldb

import (
	"github.com/juju/errors"
	"github.com/syndtr/goleveldb/leveldb"

	"scalenode-go/nvs"
)

type Store struct {
	db *leveldb.DB
}

var _ nvs.Store = (*Store)(nil)

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "nvs open path=%s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(key string) ([]byte, error) {
	v, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nvs.ErrNotFound
	}
	if err != nil {
		return nil, errors.Annotatef(err, "nvs get key=%s", key)
	}
	return v, nil
}

func (s *Store) Put(key string, val []byte) error {
	return errors.Annotatef(s.db.Put([]byte(key), val, nil), "nvs put key=%s", key)
}

func (s *Store) Delete(key string) error {
	return errors.Annotatef(s.db.Delete([]byte(key), nil), "nvs delete key=%s", key)
}

func (s *Store) Close() error { return s.db.Close() }
