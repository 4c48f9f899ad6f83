package forkchoice

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-chronos/finality"
	"github.com/rony4d/go-chronos/vdf"
)

func h(b byte) hash.Hash {
	var out hash.Hash
	out[0] = b
	return out
}

func TestCompare_Cascade(t *testing.T) {
	base := Candidate{Hash: h(5), Participants: 10, TotalIterations: 1000, Reliability: 0.5}

	for name, tc := range map[string]struct {
		other Candidate
		want  int
	}{
		"more participants": {Candidate{Hash: h(9), Participants: 11}, -1},
		"fewer participants beat anything else": {
			Candidate{Hash: h(0), Participants: 9, TotalIterations: 1 << 60, Reliability: 1}, 1},
		"more iterations":    {Candidate{Hash: h(9), Participants: 10, TotalIterations: 1001}, -1},
		"higher reliability": {Candidate{Hash: h(9), Participants: 10, TotalIterations: 1000, Reliability: 0.6}, -1},
		"NaN reliability":    {Candidate{Hash: h(0), Participants: 10, TotalIterations: 1000, Reliability: math.NaN()}, 1},
		"lower hash":         {Candidate{Hash: h(4), Participants: 10, TotalIterations: 1000, Reliability: 0.5}, -1},
		"higher hash":        {Candidate{Hash: h(6), Participants: 10, TotalIterations: 1000, Reliability: 0.5}, 1},
		"identical":          {base, 0},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, Compare(base, tc.other))
			require.Equal(t, -tc.want, Compare(tc.other, base))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	require := require.New(t)
	r := NewResolver(nil)

	_, err := r.Resolve(nil)
	require.ErrorIs(err, ErrNoCandidates)

	cands := []Candidate{
		{Hash: h(3), Participants: 5, TotalIterations: 10},
		{Hash: h(2), Participants: 5, TotalIterations: 10},
		{Hash: h(7), Participants: 4, TotalIterations: 99},
		{Hash: h(1), Participants: 5, TotalIterations: 9},
	}
	winner, err := r.Resolve(cands)
	require.NoError(err)
	require.Equal(h(2), winner)

	// the winner does not depend on input order
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
		got, err := r.Resolve(cands)
		require.NoError(err)
		require.Equal(winner, got)
	}

	ranked := r.Rank(cands)
	require.Equal([]hash.Hash{h(2), h(3), h(1), h(7)}, []hash.Hash{ranked[0].Hash, ranked[1].Hash, ranked[2].Hash, ranked[3].Hash})
}

type acceptAll struct{}

func (acceptAll) VerifyProof(*vdf.Proof) bool { return true }

func grow(t *testing.T, acc *finality.Accumulator, id hash.Hash, n int, iterations uint64) {
	_, err := acc.RegisterBlock(id, id)
	require.NoError(t, err)
	prev := id
	for i := 0; i < n; i++ {
		out := hash.Of(prev.Bytes())
		_, err := acc.AddCheckpoint(id, &vdf.Proof{InputHash: prev, OutputHash: out, Iterations: iterations})
		require.NoError(t, err)
		prev = out
	}
}

func TestResolver_FromAccumulator(t *testing.T) {
	require := require.New(t)
	acc := finality.New(finality.DefaultRules(), acceptAll{})
	r := NewResolver(nil)

	a, b, c, unknown := h(0xa), h(0xb), h(0xc), h(0xd)
	grow(t, acc, a, 3, 100)
	grow(t, acc, b, 5, 100)
	grow(t, acc, c, 100, 1)

	peers := map[hash.Hash]PeerReport{
		a: {Participants: 7, Reliability: 0.9},
		b: {Participants: 7, Reliability: 0.1},
		c: {Participants: 1},
	}
	cands := FromAccumulator(acc, []hash.Hash{a, b, c, unknown}, peers)
	require.Len(cands, 4)
	require.Equal(uint64(300), cands[0].TotalIterations)
	require.Equal(uint64(0), cands[3].TotalIterations)

	// the cascade alone prefers b: same participants, more iterations
	winner, err := r.Resolve(cands)
	require.NoError(err)
	require.Equal(b, winner)

	// finality first: only c reached medium
	tip, err := r.SelectTip(acc, []hash.Hash{a, b, c, unknown}, peers)
	require.NoError(err)
	require.Equal(c, tip)

	tip, err = r.SelectTip(acc, []hash.Hash{a, b, unknown}, peers)
	require.NoError(err)
	require.Equal(b, tip)

	_, err = r.SelectTip(acc, nil, peers)
	require.ErrorIs(err, ErrNoCandidates)
}

func TestCheckpoint(t *testing.T) {
	require := require.New(t)
	r := NewResolver(nil)

	prev := h(1)
	blocks := []hash.Hash{h(2), h(3), h(4)}
	cp := NewCheckpoint(1700000000, prev, blocks, nil, 12, 5000, 0.75)

	raw, err := cp.MarshalBinary()
	require.NoError(err)
	var got Checkpoint
	require.NoError(got.UnmarshalBinary(raw))
	require.Equal(*cp, got)
	require.Equal(cp.Hash(), got.Hash())

	weaker := NewCheckpoint(1700000000, prev, blocks[:2], nil, 11, 9000, 1)
	winner, err := r.ResolveCheckpoints([]*Checkpoint{weaker, cp})
	require.NoError(err)
	require.Same(cp, winner)

	other := NewCheckpoint(1700000060, cp.Hash(), blocks, nil, 12, 5000, 0.75)
	_, err = r.ResolveCheckpoints([]*Checkpoint{cp, other})
	require.ErrorIs(err, ErrMixedBoundaries)

	_, err = r.ResolveCheckpoints(nil)
	require.ErrorIs(err, ErrNoCandidates)
}
