package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"
)

func TestStore_States(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	h1, h2 := hash.Of([]byte("1")), hash.Of([]byte("2"))
	require.NoError(s.PutState(h1, []byte("one")))
	require.NoError(s.PutState(h2, []byte("two")))

	got, err := s.GetState(h1)
	require.NoError(err)
	require.Equal([]byte("one"), got)

	seen := map[hash.Hash]string{}
	require.NoError(s.ForEachState(func(h hash.Hash, raw []byte) error {
		seen[h] = string(raw)
		return nil
	}))
	require.Equal(map[hash.Hash]string{h1: "one", h2: "two"}, seen)

	require.NoError(s.DeleteState(h1))
	_, err = s.GetState(h1)
	require.ErrorIs(err, ErrNotFound)
}

func TestStore_Checkpoints(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	h, other := hash.Of([]byte("1")), hash.Of([]byte("2"))
	for i := uint64(0); i < 3; i++ {
		require.NoError(s.PutCheckpoint(h, i, []byte{byte(i)}, []byte{0xa0 + byte(i)}))
	}
	require.NoError(s.PutCheckpoint(other, 0, []byte("other"), []byte("p")))

	got, err := s.GetState(h)
	require.NoError(err)
	require.Equal([]byte{2}, got)

	var proofs []byte
	require.NoError(s.ForEachProof(h, func(index uint64, raw []byte) error {
		require.Equal(uint64(len(proofs)), index)
		proofs = append(proofs, raw...)
		return nil
	}))
	require.Equal([]byte{0xa0, 0xa1, 0xa2}, proofs)

	require.NoError(s.DeleteState(h))
	_, err = s.GetState(h)
	require.ErrorIs(err, ErrNotFound)
	calls := 0
	require.NoError(s.ForEachProof(h, func(uint64, []byte) error {
		calls++
		return nil
	}))
	require.Zero(calls)

	// states of other blocks are untouched
	require.NoError(s.ForEachProof(other, func(uint64, []byte) error {
		calls++
		return nil
	}))
	require.Equal(1, calls)
	seen := 0
	require.NoError(s.ForEachState(func(hash.Hash, []byte) error {
		seen++
		return nil
	}))
	require.Equal(1, seen)
}

func TestStore_BlocksInNumberOrder(t *testing.T) {
	require := require.New(t)
	s, err := OpenMemory()
	require.NoError(err)
	defer s.Close()

	// 256 sorts after 1 only with big-endian keys
	for _, n := range []idx.Block{256, 1, 0, 2} {
		require.NoError(s.PutBlock(1, n, []byte{byte(n)}))
	}
	require.NoError(s.PutBlock(2, 0, []byte("tau2")))

	var numbers []idx.Block
	require.NoError(s.ForEachBlock(1, func(n idx.Block, raw []byte) error {
		numbers = append(numbers, n)
		return nil
	}))
	require.Equal([]idx.Block{0, 1, 2, 256}, numbers)

	stop := errors.New("stop")
	calls := 0
	err = s.ForEachBlock(1, func(idx.Block, []byte) error {
		calls++
		return stop
	})
	require.ErrorIs(err, stop)
	require.Equal(1, calls)

	raw, err := s.GetBlock(2, 0)
	require.NoError(err)
	require.Equal([]byte("tau2"), raw)
	_, err = s.GetBlock(3, 0)
	require.ErrorIs(err, ErrNotFound)
}

func TestStore_ReopenFile(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "chaindata")

	s, err := Open(path)
	require.NoError(err)
	require.NoError(s.PutMeta("genesis", []byte("g")))
	require.NoError(s.Close())

	s, err = Open(path)
	require.NoError(err)
	defer s.Close()
	got, err := s.GetMeta("genesis")
	require.NoError(err)
	require.Equal([]byte("g"), got)
}
