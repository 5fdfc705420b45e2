// Package journal keeps the latest outcome per address and every cycle
// summary in a local RocksDB, so a restarted oracle can still answer status
// queries. The chain stays the source of truth for assessments.
package journal

import (
	"github.com/tecbot/gorocksdb"
)

type Store struct {
	db *gorocksdb.DB
	ro *gorocksdb.ReadOptions
	wo *gorocksdb.WriteOptions
}

func Open(path string) (*Store, error) {
	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := gorocksdb.OpenDb(opts, path)
	if err != nil {
		return nil, err
	}
	return &Store{
		db: db,
		ro: gorocksdb.NewDefaultReadOptions(),
		wo: gorocksdb.NewDefaultWriteOptions(),
	}, nil
}

func (s *Store) Close() error {
	if s.ro != nil {
		s.ro.Destroy()
	}
	if s.wo != nil {
		s.wo.Destroy()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

func (s *Store) PutResult(lower string, raw []byte) error {
	return s.db.Put(s.wo, KeyResult(lower), raw)
}

func (s *Store) LastResult(lower string) ([]byte, bool, error) {
	return s.get(KeyResult(lower))
}

// PutCycle stores the summary and moves the last-cycle pointer in one batch.
func (s *Store) PutCycle(id string, raw []byte) error {
	wb := gorocksdb.NewWriteBatch()
	defer wb.Destroy()

	wb.Put(KeyCycle(id), raw)
	wb.Put(KeyLastCycle(), []byte(id))
	return s.db.Write(s.wo, wb)
}

func (s *Store) Cycle(id string) ([]byte, bool, error) {
	return s.get(KeyCycle(id))
}

func (s *Store) LastCycle() ([]byte, bool, error) {
	id, ok, err := s.get(KeyLastCycle())
	if err != nil || !ok {
		return nil, ok, err
	}
	return s.get(KeyCycle(string(id)))
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	val, err := s.db.Get(s.ro, key)
	if err != nil {
		return nil, false, err
	}
	defer val.Free()

	if !val.Exists() {
		return nil, false, nil
	}
	// val.Data() is owned by RocksDB and invalid after Free
	return append([]byte(nil), val.Data()...), true, nil
}
