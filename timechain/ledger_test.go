package timechain

import (
	"errors"
	"sort"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chronos/faults"
)

type memStore struct {
	blocks map[uint8]map[idx.Block][]byte
	fail   bool
}

func newMemStore() *memStore {
	return &memStore{blocks: make(map[uint8]map[idx.Block][]byte)}
}

func (s *memStore) PutBlock(level uint8, number idx.Block, raw []byte) error {
	if s.fail {
		return errors.New("disk full")
	}
	if s.blocks[level] == nil {
		s.blocks[level] = make(map[idx.Block][]byte)
	}
	s.blocks[level][number] = append([]byte(nil), raw...)
	return nil
}

func (s *memStore) ForEachBlock(level uint8, fn func(idx.Block, []byte) error) error {
	var numbers []idx.Block
	for n := range s.blocks[level] {
		numbers = append(numbers, n)
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for _, n := range numbers {
		if err := fn(n, s.blocks[level][n]); err != nil {
			return err
		}
	}
	return nil
}

func testSigner(t testing.TB) Signer {
	s, err := KeySignerFromHex("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	require.NoError(t, err)
	return s
}

func testLedger(t testing.TB, opts ...Option) *Ledger {
	return NewLedger(FakeRules(), testSigner(t), opts...)
}

func appendN(t testing.TB, l *Ledger, n int, ts uint64) {
	for i := 0; i < n; i++ {
		_, err := l.AppendEvent(Event{
			Timestamp: ts + uint64(i),
			VDFOutput: hash.Of([]byte{byte(i)}),
			Payloads:  [][]byte{[]byte("event"), {byte(i)}},
		})
		require.NoError(t, err)
	}
}

func TestLedger_AppendEvent(t *testing.T) {
	require := require.New(t)
	l := testLedger(t)

	b0, err := l.AppendEvent(Event{Timestamp: 100, Payloads: [][]byte{[]byte("a")}})
	require.NoError(err)
	require.Equal(Tau1, b0.Level)
	require.Equal(idx.Block(0), b0.Number)
	require.Equal(hash.Hash{}, b0.PrevHash)
	require.Equal(EventsRoot([][]byte{[]byte("a")}), b0.EventsRoot)
	require.True(VerifySignature(b0))

	b1, err := l.AppendEvent(Event{Timestamp: 100})
	require.NoError(err)
	require.Equal(b0.Hash(), b1.PrevHash)
	require.Equal(hash.Hash{}, b1.EventsRoot)

	t.Run("time regression", func(t *testing.T) {
		_, err := l.AppendEvent(Event{Timestamp: 99})
		require.ErrorIs(err, ErrNonMonotonicTime)
		require.ErrorIs(err, faults.Chain)
		require.Equal(2, l.Len(Tau1))
		require.Equal(b1, l.Tip(Tau1))
	})

	t.Run("payload limits", func(t *testing.T) {
		_, err := l.AppendEvent(Event{Timestamp: 101, Payloads: [][]byte{make([]byte, l.Rules().MaxPayloadSize+1)}})
		require.ErrorIs(err, ErrTooManyPayloads)
		require.Equal(2, l.Len(Tau1))
	})
}

func TestLedger_SealThresholds(t *testing.T) {
	require := require.New(t)
	l := testLedger(t)
	rules := l.Rules()

	appendN(t, l, int(rules.Tau1PerTau2)-1, 1000)
	b, ok, err := l.TrySealTau2(3000, 0)
	require.NoError(err)
	require.False(ok)
	require.Nil(b)

	appendN(t, l, 1, 2000)
	require.Equal(int(rules.Tau1PerTau2), l.Pending(Tau1))

	_, err = l.AppendEvent(Event{Timestamp: 3000})
	require.ErrorIs(err, ErrPendingFull)

	b, ok, err = l.TrySealTau2(3000, 0)
	require.NoError(err)
	require.True(ok)
	require.Equal(uint64(3000), b.Emission)
	require.Equal(uint64(2000), b.Timestamp)
	require.Equal(0, l.Pending(Tau1))
	require.Equal(1, l.Pending(Tau2))
	require.Len(b.ChildRoots, int(rules.Tau1PerTau2))
	require.Equal(l.Block(Tau1, 0).ContentRoot(), b.ChildRoots[0])

	// nothing pending: no second seal
	_, ok, err = l.TrySealTau2(3000, 0)
	require.NoError(err)
	require.False(ok)

	_, ok, err = l.TrySealTau3()
	require.NoError(err)
	require.False(ok)

	require.NoError(l.VerifyChain())
}

func TestLedger_FullHierarchy(t *testing.T) {
	require := require.New(t)
	l := testLedger(t)
	rules := l.Rules()

	perTau4 := int(rules.Tau1PerTau2 * rules.Tau2PerTau3 * rules.Tau3PerTau4)
	ts := uint64(1)
	var sealed []Block
	for i := 0; i < perTau4*2; i++ {
		appendN(t, l, 1, ts)
		ts += 60
		bb, err := l.SealAll()
		require.NoError(err)
		sealed = append(sealed, bb...)
	}

	require.Equal(perTau4*2, l.Len(Tau1))
	require.Equal(int(rules.Tau2PerTau3*rules.Tau3PerTau4)*2, l.Len(Tau2))
	require.Equal(int(rules.Tau3PerTau4)*2, l.Len(Tau3))
	require.Equal(2, l.Len(Tau4))
	require.Len(sealed, l.Len(Tau2)+l.Len(Tau3)+l.Len(Tau4))
	require.Equal(uint32(2), l.HalvingFor())

	// the second Tau4 era pays half
	first := l.Block(Tau2, 0).(*Tau2Block)
	last := l.Tip(Tau2).(*Tau2Block)
	require.Equal(rules.BaseEmission, first.Emission)
	require.Equal(uint32(1), last.Halving)
	require.Equal(rules.BaseEmission/2, last.Emission)

	// a Tau4 block carries the roots of its Tau3 children
	t4 := l.Block(Tau4, 1).(*Tau4Block)
	require.Equal(l.Block(Tau4, 0).Hash(), t4.PrevHash)
	require.Equal(l.Block(Tau3, idx.Block(rules.Tau3PerTau4)).ContentRoot(), t4.ChildRoots[0])

	require.NoError(l.VerifyChain())
	require.True(l.VerifyChainOK())
}

func TestLedger_VerifyChainDetectsTampering(t *testing.T) {
	build := func(t *testing.T) *Ledger {
		l := testLedger(t)
		appendN(t, l, 10, 500)
		_, ok, err := l.TrySealTau2(3000, 0)
		require.NoError(t, err)
		require.True(t, ok)
		appendN(t, l, 3, 600)
		require.NoError(t, l.VerifyChain())
		return l
	}

	t.Run("payload", func(t *testing.T) {
		l := build(t)
		l.Block(Tau1, 4).(*Tau1Block).Payloads[0] = []byte("forged")
		require.ErrorIs(t, l.VerifyChain(), ErrBadSignature)
	})

	t.Run("events root", func(t *testing.T) {
		l := build(t)
		l.Block(Tau1, 4).(*Tau1Block).EventsRoot = hash.Of([]byte("x"))
		require.ErrorIs(t, l.VerifyChain(), ErrBadSignature)
		require.True(t, faults.IsFatal(l.VerifyChain()))
	})

	t.Run("prev hash", func(t *testing.T) {
		l := build(t)
		l.Block(Tau1, 7).BlockHeader().PrevHash = hash.Hash{}
		require.ErrorIs(t, l.VerifyChain(), ErrBrokenLink)
	})

	t.Run("timestamp", func(t *testing.T) {
		l := build(t)
		l.Block(Tau1, 11).BlockHeader().Timestamp = 1
		require.ErrorIs(t, l.VerifyChain(), ErrNonMonotonicTime)
	})

	t.Run("signature", func(t *testing.T) {
		l := build(t)
		sig := l.Block(Tau2, 0).BlockHeader().Signature
		sig[5] ^= 0xff
		require.ErrorIs(t, l.VerifyChain(), ErrBadSignature)
	})

	t.Run("child root", func(t *testing.T) {
		l := build(t)
		t2 := l.Block(Tau2, 0).(*Tau2Block)
		t2.ChildRoots[3] = hash.Of([]byte("x"))
		signer := testSigner(t)
		require.NoError(t, signBlock(t2, signer))
		require.ErrorIs(t, l.VerifyChain(), ErrBadRoot)
	})
}

func TestLedger_Encoding(t *testing.T) {
	require := require.New(t)
	l := testLedger(t)
	appendN(t, l, 10, 10)
	_, _, err := l.TrySealTau2(1500, 1)
	require.NoError(err)

	for _, b := range []Block{l.Block(Tau1, 3), l.Tip(Tau2)} {
		raw, err := MarshalBlock(b)
		require.NoError(err)
		got, err := UnmarshalBlock(raw)
		require.NoError(err)
		require.Equal(b, got)
		require.Equal(b.Hash(), got.Hash())
		require.True(VerifySignature(got))

		_, err = UnmarshalBlock(raw[:len(raw)-3])
		require.Error(err)
	}
}

func TestLedger_Persistence(t *testing.T) {
	require := require.New(t)
	store := newMemStore()
	signer := testSigner(t)
	l := NewLedger(FakeRules(), signer, WithStore(store))

	appendN(t, l, 10, 100)
	_, ok, err := l.TrySealTau2(3000, 0)
	require.NoError(err)
	require.True(ok)
	appendN(t, l, 3, 200)

	t.Run("failed write leaves state unchanged", func(t *testing.T) {
		store.fail = true
		defer func() { store.fail = false }()
		_, err := l.AppendEvent(Event{Timestamp: 300})
		require.Error(err)
		require.Equal(13, l.Len(Tau1))
		require.Equal(3, l.Pending(Tau1))
	})

	t.Run("reload", func(t *testing.T) {
		loaded, err := LoadLedger(FakeRules(), signer, store)
		require.NoError(err)
		for _, level := range Levels {
			require.Equal(l.Len(level), loaded.Len(level), level.String())
			require.Equal(l.Pending(level), loaded.Pending(level), level.String())
		}
		require.Equal(l.Tip(Tau1).Hash(), loaded.Tip(Tau1).Hash())
		require.Equal(l.Tip(Tau2).Hash(), loaded.Tip(Tau2).Hash())

		// the reloaded ledger keeps extending the same chain
		b, err := loaded.AppendEvent(Event{Timestamp: 400})
		require.NoError(err)
		require.Equal(l.Tip(Tau1).Hash(), b.PrevHash)
	})

	t.Run("corruption", func(t *testing.T) {
		raw := store.blocks[uint8(Tau1)][5]
		b, err := UnmarshalBlock(raw)
		require.NoError(err)
		b.(*Tau1Block).VDFOutput = hash.Of([]byte("forged"))
		forged, err := MarshalBlock(b)
		require.NoError(err)
		store.blocks[uint8(Tau1)][5] = forged
		defer func() { store.blocks[uint8(Tau1)][5] = raw }()

		_, err = LoadLedger(FakeRules(), signer, store)
		require.Error(err)
		require.True(faults.IsFatal(err))
	})
}

func TestReward(t *testing.T) {
	require := require.New(t)

	require.Equal(uint64(3000), Reward(3000, 0))
	require.Equal(uint64(1500), Reward(3000, 1))
	require.Equal(uint64(0), Reward(3000, 12))
	require.Equal(uint64(1), Reward(1<<63, 63))
	require.Equal(uint64(0), Reward(1<<63, 64))
	require.Equal(uint64(0), Reward(1<<63, 1000))
}
