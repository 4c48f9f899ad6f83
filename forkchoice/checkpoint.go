package forkchoice

import (
	"fmt"
	"math"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-chronos/faults"
	"github.com/rony4d/go-chronos/timechain"
	"github.com/rony4d/go-chronos/utils/cser"
)

const checkpointVersion = 1

// ErrMixedBoundaries is returned when competing checkpoints are for
// different UTC boundaries.
var ErrMixedBoundaries = faults.New(faults.Chain, "checkpoints for different boundaries")

// Checkpoint is a finality checkpoint published at a UTC boundary.
type Checkpoint struct {
	BoundaryTime    uint64 // unix seconds
	BlocksRoot      hash.Hash
	ProofsRoot      hash.Hash
	Participants    uint64
	TotalIterations uint64
	AggregateScore  float64
	PrevCheckpoint  hash.Hash
}

// NewCheckpoint commits to the given block and proof hashes.
func NewCheckpoint(boundary uint64, prev hash.Hash, blocks, proofs []hash.Hash, participants, iterations uint64, score float64) *Checkpoint {
	return &Checkpoint{
		BoundaryTime:    boundary,
		BlocksRoot:      timechain.MerkleRoot(blocks),
		ProofsRoot:      timechain.MerkleRoot(proofs),
		Participants:    participants,
		TotalIterations: iterations,
		AggregateScore:  score,
		PrevCheckpoint:  prev,
	}
}

// MarshalCSER writes the canonical encoding of cp.
func (cp *Checkpoint) MarshalCSER(w *cser.Writer) error {
	w.U8(checkpointVersion)
	w.U64(cp.BoundaryTime)
	w.FixedBytes(cp.BlocksRoot.Bytes())
	w.FixedBytes(cp.ProofsRoot.Bytes())
	w.U64(cp.Participants)
	w.U64(cp.TotalIterations)
	w.U64(math.Float64bits(cp.AggregateScore))
	w.FixedBytes(cp.PrevCheckpoint.Bytes())
	return nil
}

// UnmarshalCSER reads a checkpoint written by MarshalCSER.
func (cp *Checkpoint) UnmarshalCSER(r *cser.Reader) error {
	if v := r.U8(); v != checkpointVersion {
		return fmt.Errorf("unsupported checkpoint version %d", v)
	}
	cp.BoundaryTime = r.U64()
	r.FixedBytes(cp.BlocksRoot[:])
	r.FixedBytes(cp.ProofsRoot[:])
	cp.Participants = r.U64()
	cp.TotalIterations = r.U64()
	cp.AggregateScore = math.Float64frombits(r.U64())
	r.FixedBytes(cp.PrevCheckpoint[:])
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (cp *Checkpoint) MarshalBinary() ([]byte, error) {
	return cser.MarshalBinaryAdapter(cp.MarshalCSER)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (cp *Checkpoint) UnmarshalBinary(raw []byte) error {
	return cser.UnmarshalBinaryAdapter(raw, cp.UnmarshalCSER)
}

// Hash is the SHA-256 of the canonical encoding.
func (cp *Checkpoint) Hash() hash.Hash {
	raw, _ := cp.MarshalBinary()
	return hash.Of(raw)
}

// Candidate is cp as a fork choice candidate.
func (cp *Checkpoint) Candidate() Candidate {
	return Candidate{
		Hash:            cp.Hash(),
		Participants:    cp.Participants,
		TotalIterations: cp.TotalIterations,
		Reliability:     cp.AggregateScore,
	}
}

// ResolveCheckpoints picks the winner among checkpoints for one boundary.
func (r *Resolver) ResolveCheckpoints(cps []*Checkpoint) (*Checkpoint, error) {
	if len(cps) == 0 {
		return nil, ErrNoCandidates
	}
	byHash := make(map[hash.Hash]*Checkpoint, len(cps))
	cands := make([]Candidate, len(cps))
	for i, cp := range cps {
		if cp.BoundaryTime != cps[0].BoundaryTime {
			return nil, ErrMixedBoundaries
		}
		cands[i] = cp.Candidate()
		byHash[cands[i].Hash] = cp
	}
	winner, err := r.Resolve(cands)
	if err != nil {
		return nil, err
	}
	return byHash[winner], nil
}
