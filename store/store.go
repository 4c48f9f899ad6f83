// Package store persists the time chain and the accumulated states in LevelDB.
//
// Key layout:
//
//	"a" + block hash                   -> encoded accumulated state
//	"c" + block hash + big-endian index -> encoded checkpoint proof
//	"b" + level + big-endian number    -> encoded time block
//	"m" + name                         -> node metadata
package store

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	statePrefix = []byte("a")
	blockPrefix = []byte("b")
	proofPrefix = []byte("c")
	metaPrefix  = []byte("m")
)

// ErrNotFound is returned by the getters for absent keys.
var ErrNotFound = errors.New("not found")

// Store is a LevelDB-backed key-value store. It is safe for concurrent use.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the database at path. An empty path opens an
// in-memory database.
func Open(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory database.
func OpenMemory() (*Store, error) {
	return Open("")
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func stateKey(h hash.Hash) []byte {
	return append(append([]byte(nil), statePrefix...), h.Bytes()...)
}

func stateProofsPrefix(h hash.Hash) []byte {
	return append(append([]byte(nil), proofPrefix...), h.Bytes()...)
}

func proofKey(h hash.Hash, index uint64) []byte {
	return append(stateProofsPrefix(h), bigendian.Uint64ToBytes(index)...)
}

func blockLevelPrefix(level uint8) []byte {
	return append(append([]byte(nil), blockPrefix...), level)
}

func blockKey(level uint8, number idx.Block) []byte {
	return append(blockLevelPrefix(level), bigendian.Uint64ToBytes(uint64(number))...)
}

func metaKey(name string) []byte {
	return append(append([]byte(nil), metaPrefix...), name...)
}

func (s *Store) get(key []byte) ([]byte, error) {
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %x: %w", key, err)
	}
	return data, nil
}

// forEach iterates prefix in key order. Keys and values are copied.
func (s *Store) forEach(prefix []byte, fn func(key, value []byte) error) error {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	for it.Next() {
		key := append([]byte(nil), it.Key()[len(prefix):]...)
		value := append([]byte(nil), it.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return it.Error()
}

// PutState stores the encoded state of block h.
func (s *Store) PutState(h hash.Hash, raw []byte) error {
	return s.db.Put(stateKey(h), raw, nil)
}

// GetState returns the encoded state of block h.
func (s *Store) GetState(h hash.Hash) ([]byte, error) {
	return s.get(stateKey(h))
}

// PutCheckpoint stores the encoded state of block h together with its proof
// number index, atomically.
func (s *Store) PutCheckpoint(h hash.Hash, index uint64, state, proof []byte) error {
	batch := new(leveldb.Batch)
	batch.Put(stateKey(h), state)
	batch.Put(proofKey(h, index), proof)
	return s.db.Write(batch, nil)
}

// ForEachProof iterates the proofs of block h in index order.
func (s *Store) ForEachProof(h hash.Hash, fn func(index uint64, raw []byte) error) error {
	return s.forEach(stateProofsPrefix(h), func(key, value []byte) error {
		if len(key) != 8 {
			return fmt.Errorf("malformed proof key %x", key)
		}
		return fn(bigendian.BytesToUint64(key), value)
	})
}

// DeleteState removes the state of block h and its proofs.
func (s *Store) DeleteState(h hash.Hash) error {
	batch := new(leveldb.Batch)
	batch.Delete(stateKey(h))
	err := s.forEach(stateProofsPrefix(h), func(key, _ []byte) error {
		batch.Delete(append(stateProofsPrefix(h), key...))
		return nil
	})
	if err != nil {
		return err
	}
	return s.db.Write(batch, nil)
}

// ForEachState iterates every stored state in hash order.
func (s *Store) ForEachState(fn func(h hash.Hash, raw []byte) error) error {
	return s.forEach(statePrefix, func(key, value []byte) error {
		if len(key) != len(hash.Hash{}) {
			return fmt.Errorf("malformed state key %x", key)
		}
		return fn(hash.BytesToHash(key), value)
	})
}

// PutBlock stores an encoded block under (level, number).
func (s *Store) PutBlock(level uint8, number idx.Block, raw []byte) error {
	return s.db.Put(blockKey(level, number), raw, nil)
}

// GetBlock returns the encoded block at (level, number).
func (s *Store) GetBlock(level uint8, number idx.Block) ([]byte, error) {
	return s.get(blockKey(level, number))
}

// ForEachBlock iterates the blocks of one level in number order.
func (s *Store) ForEachBlock(level uint8, fn func(number idx.Block, raw []byte) error) error {
	return s.forEach(blockLevelPrefix(level), func(key, value []byte) error {
		if len(key) != 8 {
			return fmt.Errorf("malformed block key %x", key)
		}
		return fn(idx.Block(bigendian.BytesToUint64(key)), value)
	})
}

// PutMeta stores a metadata value.
func (s *Store) PutMeta(name string, value []byte) error {
	return s.db.Put(metaKey(name), value, nil)
}

// GetMeta returns a metadata value.
func (s *Store) GetMeta(name string) ([]byte, error) {
	return s.get(metaKey(name))
}
