package finality

import (
	"fmt"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-chronos/utils/cser"
	"github.com/rony4d/go-chronos/vdf"
)

const stateVersion = 1

// AccumulatedState is the checkpoint history of one tracked block. Proof i
// takes as input the output of proof i-1, and proof 0 takes InitialOutput.
// Checkpoints always equals len(Proofs).
type AccumulatedState struct {
	BlockHash          hash.Hash
	InitialOutput      hash.Hash
	Checkpoints        uint64
	LastCheckpointTime time.Time
	Proofs             []*vdf.Proof
}

// ExpectedInput is the input hash the next proof must start from.
func (s *AccumulatedState) ExpectedInput() hash.Hash {
	if len(s.Proofs) == 0 {
		return s.InitialOutput
	}
	return s.Proofs[len(s.Proofs)-1].OutputHash
}

// TotalIterations sums the iterations of every accepted proof.
func (s *AccumulatedState) TotalIterations() uint64 {
	var total uint64
	for _, p := range s.Proofs {
		total += p.Iterations
	}
	return total
}

// Copy returns a copy sharing the immutable proofs.
func (s *AccumulatedState) Copy() *AccumulatedState {
	cp := *s
	cp.Proofs = append([]*vdf.Proof(nil), s.Proofs...)
	return &cp
}

// withProof returns the successor state after accepting p at now.
func (s *AccumulatedState) withProof(p *vdf.Proof, now time.Time) *AccumulatedState {
	next := s.Copy()
	next.Proofs = append(next.Proofs, p)
	next.Checkpoints++
	next.LastCheckpointTime = now
	return next
}

// MarshalState encodes everything in s but the proofs, which are stored one
// per record with MarshalProof.
func MarshalState(s *AccumulatedState) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.U8(stateVersion)
		w.FixedBytes(s.BlockHash.Bytes())
		w.FixedBytes(s.InitialOutput.Bytes())
		w.U64(s.Checkpoints)
		var nanos int64
		if !s.LastCheckpointTime.IsZero() {
			nanos = s.LastCheckpointTime.UnixNano()
		}
		w.I64(nanos)
		return nil
	})
}

// UnmarshalState decodes a state without its proofs.
func UnmarshalState(raw []byte) (*AccumulatedState, error) {
	s := &AccumulatedState{}
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		if v := r.U8(); v != stateVersion {
			return fmt.Errorf("unsupported state version %d", v)
		}
		r.FixedBytes(s.BlockHash[:])
		r.FixedBytes(s.InitialOutput[:])
		s.Checkpoints = r.U64()
		if nanos := r.I64(); nanos != 0 {
			s.LastCheckpointTime = time.Unix(0, nanos).UTC()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return s, nil
}

// MarshalProof encodes one checkpoint proof with group g.
func MarshalProof(g vdf.Group, p *vdf.Proof) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		return vdf.WriteProof(w, g, p)
	})
}

// UnmarshalProof decodes a checkpoint proof. It does not verify it.
func UnmarshalProof(g vdf.Group, raw []byte) (*vdf.Proof, error) {
	var p *vdf.Proof
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) (err error) {
		p, err = vdf.ReadProof(r, g)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return p, nil
}
