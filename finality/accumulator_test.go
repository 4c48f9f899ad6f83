package finality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chronos/faults"
	"github.com/rony4d/go-chronos/store"
	"github.com/rony4d/go-chronos/vdf"
)

var (
	testEngineOnce sync.Once
	testEngine     *vdf.Engine
)

func engine(t testing.TB) *vdf.Engine {
	testEngineOnce.Do(func() {
		g, err := vdf.NewGroup(vdf.FakeRules())
		require.NoError(t, err)
		testEngine = vdf.NewEngine(g, vdf.FakeRules())
	})
	return testEngine
}

// chain returns the initial output hash of seed and n proofs chained from it.
func chain(t testing.TB, seed string, n int, iterations uint64) (hash.Hash, []*vdf.Proof) {
	e := engine(t)
	x, err := e.InputFromPayload([]byte(seed))
	require.NoError(t, err)
	initial, err := vdf.ElementHash(e.Group(), x)
	require.NoError(t, err)

	proofs := make([]*vdf.Proof, n)
	for i := range proofs {
		p, err := e.EvaluateAndProve(context.Background(), x, iterations)
		require.NoError(t, err)
		proofs[i] = p
		x = p.Output
	}
	return initial, proofs
}

// acceptAll accepts every proof, so long histories can be built from
// hash-only proofs.
type acceptAll struct{}

func (acceptAll) VerifyProof(*vdf.Proof) bool { return true }

func fakeChain(initial hash.Hash, n int) []*vdf.Proof {
	proofs := make([]*vdf.Proof, n)
	prev := initial
	for i := range proofs {
		out := hash.Of(prev.Bytes())
		proofs[i] = &vdf.Proof{InputHash: prev, OutputHash: out, Iterations: 10}
		prev = out
	}
	return proofs
}

func TestRules_Level(t *testing.T) {
	require := require.New(t)
	r := DefaultRules()
	require.NoError(r.Validate())

	for checkpoints, level := range map[uint64]Level{
		0: None, 1: Soft, 99: Soft, 100: Medium, 999: Medium, 1000: Hard, 1 << 40: Hard,
	} {
		require.Equal(level, r.Level(checkpoints), "checkpoints=%d", checkpoints)
	}

	require.Equal(Medium, r.BoundariesToLevel(100))
	require.Equal(100*time.Minute, r.TimeToLevel(Medium))
	require.Equal(time.Duration(0), r.TimeToLevel(None))

	bad := r
	bad.MediumThreshold = bad.HardThreshold
	require.Error(bad.Validate())
}

func TestAccumulator_RegisterIdempotent(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})
	h, initial := hash.Of([]byte("block")), hash.Of([]byte("initial"))

	s, err := a.RegisterBlock(h, initial)
	require.NoError(err)
	require.Equal(initial, s.ExpectedInput())

	_, err = a.AddCheckpoint(h, fakeChain(initial, 1)[0])
	require.NoError(err)

	again, err := a.RegisterBlock(h, hash.Of([]byte("other")))
	require.NoError(err)
	require.Equal(initial, again.InitialOutput)
	require.Equal(uint64(1), again.Checkpoints)
	require.Equal(1, a.Len())
}

func TestAccumulator_RealProofs(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), engine(t))
	initial, proofs := chain(t, "real", 3, 8)
	h := hash.Of([]byte("tip"))

	_, err := a.RegisterBlock(h, initial)
	require.NoError(err)
	require.Equal(None, a.GetFinality(h))

	t.Run("out of order", func(t *testing.T) {
		_, err := a.AddCheckpoint(h, proofs[1])
		require.ErrorIs(err, ErrBrokenChain)
		require.ErrorIs(err, faults.Chain)
	})

	t.Run("forged witness", func(t *testing.T) {
		forged := *proofs[0]
		forged.Witness = proofs[1].Witness
		forged.Output = proofs[1].Output
		_, err := a.AddCheckpoint(h, &forged)
		require.ErrorIs(err, ErrInvalidProof)
	})

	s, _ := a.Snapshot(h)
	require.Zero(s.Checkpoints)

	for i, p := range proofs {
		level, err := a.AddCheckpoint(h, p)
		require.NoError(err, "proof %d", i)
		require.Equal(Soft, level)
	}
	s, _ = a.Snapshot(h)
	require.Equal(uint64(3), s.Checkpoints)
	require.Equal(uint64(24), s.TotalIterations())
	require.Equal(proofs[2].OutputHash, s.ExpectedInput())

	t.Run("replay", func(t *testing.T) {
		_, err := a.AddCheckpoint(h, proofs[2])
		require.ErrorIs(err, ErrBrokenChain)
	})

	t.Run("unknown block", func(t *testing.T) {
		_, err := a.AddCheckpoint(hash.Of([]byte("nope")), proofs[0])
		require.ErrorIs(err, ErrUnknownBlock)
		require.ErrorIs(err, faults.State)
		require.Equal(None, a.GetFinality(hash.Of([]byte("nope"))))
	})
}

func TestAccumulator_Thresholds(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})
	h, initial := hash.Of([]byte("long")), hash.Of([]byte("genesis"))
	_, err := a.RegisterBlock(h, initial)
	require.NoError(err)

	for i, p := range fakeChain(initial, 1000) {
		level, err := a.AddCheckpoint(h, p)
		require.NoError(err)
		switch n := i + 1; {
		case n == 99:
			require.Equal(Soft, level)
		case n == 100:
			require.Equal(Medium, level)
		case n == 999:
			require.Equal(Medium, level)
		case n == 1000:
			require.Equal(Hard, level)
		}
	}
	require.Equal(Hard, a.GetFinality(h))
}

func TestAccumulator_CompareAndSelect(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})

	grow := func(name string, n int) hash.Hash {
		h, initial := hash.Of([]byte(name)), hash.Of([]byte(name+"/0"))
		_, err := a.RegisterBlock(h, initial)
		require.NoError(err)
		for _, p := range fakeChain(initial, n) {
			_, err := a.AddCheckpoint(h, p)
			require.NoError(err)
		}
		return h
	}
	soft5 := grow("soft5", 5)
	soft7 := grow("soft7", 7)
	medium := grow("medium", 100)
	twin := grow("twin", 7)
	unknown := hash.Of([]byte("unknown"))

	require.Equal(1, a.CompareFinality(medium, soft7))
	require.Equal(-1, a.CompareFinality(soft5, soft7))
	require.Equal(0, a.CompareFinality(soft7, twin))
	require.Equal(1, a.CompareFinality(soft5, unknown))
	require.Equal(0, a.CompareFinality(unknown, unknown))

	tip, ok := a.SelectChainTip([]hash.Hash{soft5, medium, soft7})
	require.True(ok)
	require.Equal(medium, tip)

	// first seen wins a tie
	tip, _ = a.SelectChainTip([]hash.Hash{twin, soft7})
	require.Equal(twin, tip)
	tip, _ = a.SelectChainTip([]hash.Hash{soft7, twin})
	require.Equal(soft7, tip)

	_, ok = a.SelectChainTip(nil)
	require.False(ok)
}

func TestAccumulator_Prune(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})

	var all []hash.Hash
	for i := 0; i < 5; i++ {
		h := hash.Of([]byte{byte(i)})
		_, err := a.RegisterBlock(h, h)
		require.NoError(err)
		all = append(all, h)
	}
	keep := map[hash.Hash]struct{}{all[1]: {}, all[3]: {}}
	require.Equal(3, a.PruneOldStates(keep))
	require.Equal(2, a.Len())
	require.Equal(0, a.PruneOldStates(keep))

	_, err := a.AddCheckpoint(all[0], fakeChain(all[0], 1)[0])
	require.ErrorIs(err, ErrUnknownBlock)
	_, err = a.AddCheckpoint(all[1], fakeChain(all[1], 1)[0])
	require.NoError(err)
}

func TestAccumulator_ConcurrentCheckpoints(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})

	const blocks, perBlock = 8, 50
	var wg sync.WaitGroup
	errs := make(chan error, 2*blocks*perBlock)
	for b := 0; b < blocks; b++ {
		h := hash.Of([]byte{byte(b), 'c'})
		_, err := a.RegisterBlock(h, h)
		require.NoError(err)
		proofs := fakeChain(h, perBlock)

		// two writers race on the same block; each link is accepted once
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for _, p := range proofs {
					if _, err := a.AddCheckpoint(h, p); err != nil && !errors.Is(err, ErrBrokenChain) {
						errs <- err
					}
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(err)
	}

	require.Equal(blocks, a.Len())
	for _, h := range a.Tracked() {
		s, ok := a.Snapshot(h)
		require.True(ok)
		require.Equal(uint64(perBlock), s.Checkpoints)
		require.Len(s.Proofs, perBlock)
	}
}

// slowStore holds the state write of one block until released.
type slowStore struct {
	*store.Store
	hold    hash.Hash
	fail    error
	writes  chan hash.Hash
	release chan struct{}
}

func (s *slowStore) PutState(h hash.Hash, raw []byte) error {
	if h == s.hold {
		s.writes <- h
		<-s.release
		if s.fail != nil {
			return s.fail
		}
	}
	return s.Store.PutState(h, raw)
}

func TestAccumulator_RegisterWritesOutsideMapLock(t *testing.T) {
	require := require.New(t)
	db, err := store.OpenMemory()
	require.NoError(err)
	defer db.Close()

	known, pending := hash.Of([]byte("known")), hash.Of([]byte("pending"))
	slow := &slowStore{
		Store:   db,
		hold:    pending,
		writes:  make(chan hash.Hash, 2),
		release: make(chan struct{}),
	}
	a := New(DefaultRules(), acceptAll{}, WithStore(slow, engine(t).Group()))
	_, err = a.RegisterBlock(known, known)
	require.NoError(err)

	results := make(chan *AccumulatedState, 2)
	for _, initial := range []hash.Hash{pending, known} {
		initial := initial
		go func() {
			s, err := a.RegisterBlock(pending, initial)
			if err != nil {
				s = nil
			}
			results <- s
		}()
	}
	require.Equal(pending, <-slow.writes)

	// other blocks stay readable while the write is held
	s, ok := a.Snapshot(known)
	require.True(ok)
	require.Equal(known, s.InitialOutput)
	require.Equal(None, a.GetFinality(known))
	require.Len(a.Tracked(), 2)

	close(slow.release)
	first, second := <-results, <-results
	require.NotNil(first)
	require.NotNil(second)
	require.Equal(first.InitialOutput, second.InitialOutput)
	// the concurrent registration is not written twice
	require.Empty(slow.writes)

	raw, err := db.GetState(pending)
	require.NoError(err)
	stored, err := UnmarshalState(raw)
	require.NoError(err)
	require.Equal(first.InitialOutput, stored.InitialOutput)

	t.Run("failed write", func(t *testing.T) {
		failing := hash.Of([]byte("failing"))
		slow.hold, slow.fail = failing, errors.New("disk full")
		slow.release = make(chan struct{})
		close(slow.release)

		_, err := a.RegisterBlock(failing, failing)
		require.EqualError(err, "disk full")
		<-slow.writes
		_, ok := a.Snapshot(failing)
		require.False(ok)
		require.Equal(2, a.Len())

		slow.fail = nil
		_, err = a.RegisterBlock(failing, failing)
		require.NoError(err)
		<-slow.writes
		require.Equal(3, a.Len())
	})
}

func TestAccumulator_Halt(t *testing.T) {
	require := require.New(t)
	a := New(DefaultRules(), acceptAll{})
	h := hash.Of([]byte("h"))
	_, err := a.RegisterBlock(h, h)
	require.NoError(err)

	a.Halt(faults.New(faults.Corruption, "disk"))
	require.Error(a.Halted())
	_, err = a.AddCheckpoint(h, fakeChain(h, 1)[0])
	require.ErrorIs(err, ErrHalted)
	require.True(faults.IsFatal(err))

	a.Resume()
	require.NoError(a.Halted())
	_, err = a.AddCheckpoint(h, fakeChain(h, 1)[0])
	require.NoError(err)
}

func TestAccumulator_Persistence(t *testing.T) {
	require := require.New(t)
	db, err := store.OpenMemory()
	require.NoError(err)
	defer db.Close()

	e := engine(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a := New(DefaultRules(), e, WithStore(db, e.Group()), WithClock(clock))

	initial, proofs := chain(t, "persist", 2, 4)
	h := hash.Of([]byte("persisted"))
	_, err = a.RegisterBlock(h, initial)
	require.NoError(err)
	for _, p := range proofs {
		_, err := a.AddCheckpoint(h, p)
		require.NoError(err)
	}

	b := New(DefaultRules(), e, WithStore(db, e.Group()))
	n, err := b.Load()
	require.NoError(err)
	require.Equal(1, n)

	s, ok := b.Snapshot(h)
	require.True(ok)
	require.Equal(uint64(2), s.Checkpoints)
	require.True(now.Equal(s.LastCheckpointTime))
	require.Equal(proofs[1].OutputHash, s.ExpectedInput())
	require.True(e.VerifyProof(s.Proofs[0]))

	t.Run("one record per proof", func(t *testing.T) {
		var indexes []uint64
		require.NoError(db.ForEachProof(h, func(index uint64, raw []byte) error {
			indexes = append(indexes, index)
			got, err := UnmarshalProof(e.Group(), raw)
			require.NoError(err)
			require.Equal(proofs[index].OutputHash, got.OutputHash)
			return nil
		}))
		require.Equal([]uint64{0, 1}, indexes)

		raw, err := db.GetState(h)
		require.NoError(err)
		header, err := UnmarshalState(raw)
		require.NoError(err)
		require.Empty(header.Proofs)
		require.Equal(uint64(2), header.Checkpoints)
	})

	t.Run("missing proof halts", func(t *testing.T) {
		raw, err := db.GetState(h)
		require.NoError(err)
		header, err := UnmarshalState(raw)
		require.NoError(err)
		header.Checkpoints = 3
		forged, err := MarshalState(header)
		require.NoError(err)
		require.NoError(db.PutState(h, forged))

		c := New(DefaultRules(), e, WithStore(db, e.Group()))
		_, err = c.Load()
		require.ErrorIs(err, ErrCorruptState)
		require.Error(c.Halted())
		require.NoError(db.PutState(h, raw))
	})

	t.Run("pruned states are deleted", func(t *testing.T) {
		require.Equal(1, b.PruneOldStates(nil))
		_, err := db.GetState(h)
		require.ErrorIs(err, store.ErrNotFound)
		calls := 0
		require.NoError(db.ForEachProof(h, func(uint64, []byte) error {
			calls++
			return nil
		}))
		require.Zero(calls)
	})

	t.Run("corrupt state halts", func(t *testing.T) {
		require.NoError(db.PutState(h, []byte{1, 2, 3}))
		c := New(DefaultRules(), e, WithStore(db, e.Group()))
		_, err := c.Load()
		require.ErrorIs(err, ErrCorruptState)
		require.Error(c.Halted())
	})
}
