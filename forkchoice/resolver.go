package forkchoice

import (
	"sort"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chronos/finality"
	"github.com/rony4d/go-chronos/logger"
)

// Source provides point-in-time accumulator snapshots.
// *finality.Accumulator implements it.
type Source interface {
	Snapshots(hs []hash.Hash) map[hash.Hash]*finality.AccumulatedState
	Rules() finality.Rules
}

// Resolver picks the winning candidate.
type Resolver struct {
	log logrus.FieldLogger
}

// NewResolver returns a resolver that logs its decisions to log.
func NewResolver(log logrus.FieldLogger) *Resolver {
	return &Resolver{
		log: logger.OrDiscard(log).WithField("module", "forkchoice"),
	}
}

// Resolve returns the hash of the unique winner of cands.
func (r *Resolver) Resolve(cands []Candidate) (hash.Hash, error) {
	if len(cands) == 0 {
		return hash.Hash{}, ErrNoCandidates
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if Compare(c, best) > 0 {
			best = c
		}
	}
	if len(cands) > 1 {
		r.log.WithFields(logrus.Fields{
			"winner":       best.Hash.Hex(),
			"candidates":   len(cands),
			"participants": best.Participants,
			"iterations":   best.TotalIterations,
		}).Debug("Resolved fork")
	}
	return best.Hash, nil
}

// Rank returns cands sorted from most to least preferred.
func (r *Resolver) Rank(cands []Candidate) []Candidate {
	out := append([]Candidate(nil), cands...)
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j]) > 0
	})
	return out
}

// FromAccumulator builds candidates for hs from one snapshot of src. Blocks
// the accumulator does not track get zero iterations.
func FromAccumulator(src Source, hs []hash.Hash, peers map[hash.Hash]PeerReport) []Candidate {
	snaps := src.Snapshots(hs)
	out := make([]Candidate, len(hs))
	for i, h := range hs {
		out[i] = candidate(h, snaps[h], peers[h])
	}
	return out
}

func candidate(h hash.Hash, s *finality.AccumulatedState, peer PeerReport) Candidate {
	c := Candidate{
		Hash:         h,
		Participants: peer.Participants,
		Reliability:  peer.Reliability,
	}
	if s != nil {
		c.TotalIterations = s.TotalIterations()
	}
	return c
}

// SelectTip keeps the candidates with the highest finality level and applies
// the cascade among them.
func (r *Resolver) SelectTip(src Source, hs []hash.Hash, peers map[hash.Hash]PeerReport) (hash.Hash, error) {
	if len(hs) == 0 {
		return hash.Hash{}, ErrNoCandidates
	}
	rules := src.Rules()
	snaps := src.Snapshots(hs)

	levels := make([]finality.Level, len(hs))
	top := finality.None
	for i, h := range hs {
		if s := snaps[h]; s != nil {
			levels[i] = rules.Level(s.Checkpoints)
		}
		if levels[i] > top {
			top = levels[i]
		}
	}
	var cands []Candidate
	for i, h := range hs {
		if levels[i] == top {
			cands = append(cands, candidate(h, snaps[h], peers[h]))
		}
	}
	return r.Resolve(cands)
}
