package vdf

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-chronos/utils/cser"
)

// proofVersion is bumped whenever the proof encoding changes.
const proofVersion = 1

// maxElementBytes bounds a single encoded element on decode.
const maxElementBytes = 4096

// Output is the result of Evaluate: y = x^(2^T).
type Output struct {
	Input      Element
	Output     Element
	InputHash  hash.Hash
	OutputHash hash.Hash
	Iterations uint64
}

// Proof is a self-contained Wesolowski proof. Witness is π = x^⌊2^T/ℓ⌋.
// InputHash and OutputHash are always the hashes of Input and Output.
type Proof struct {
	Input      Element
	Output     Element
	Witness    Element
	InputHash  hash.Hash
	OutputHash hash.Hash
	Iterations uint64
}

// WriteProof appends the canonical encoding of p to w:
// version, T, then the length-prefixed encodings of input, output and witness.
func WriteProof(w *cser.Writer, g Group, p *Proof) error {
	w.U8(proofVersion)
	w.U64(p.Iterations)
	for _, x := range []Element{p.Input, p.Output, p.Witness} {
		raw, err := g.Encode(x)
		if err != nil {
			return err
		}
		w.SliceBytes(raw)
	}
	return nil
}

// ReadProof decodes a proof written by WriteProof. Every element is validated
// and the hashes are recomputed from the elements.
func ReadProof(r *cser.Reader, g Group) (*Proof, error) {
	if v := r.U8(); v != proofVersion {
		return nil, fmt.Errorf("%w: unsupported proof version %d", ErrInvalidProof, v)
	}
	p := &Proof{Iterations: r.U64()}
	var elems [3]Element
	for i := range elems {
		x, err := g.Decode(r.SliceBytes(maxElementBytes))
		if err != nil {
			return nil, err
		}
		elems[i] = x
	}
	p.Input, p.Output, p.Witness = elems[0], elems[1], elems[2]

	var err error
	if p.InputHash, err = ElementHash(g, p.Input); err != nil {
		return nil, err
	}
	if p.OutputHash, err = ElementHash(g, p.Output); err != nil {
		return nil, err
	}
	return p, nil
}

// EncodeProof returns the standalone canonical encoding of p.
func EncodeProof(g Group, p *Proof) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		return WriteProof(w, g, p)
	})
}

// DecodeProof parses a standalone proof encoding.
func DecodeProof(g Group, raw []byte) (*Proof, error) {
	var p *Proof
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) (err error) {
		p, err = ReadProof(r, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ProofHash identifies a proof by the SHA-256 of its canonical encoding.
func ProofHash(g Group, p *Proof) (hash.Hash, error) {
	raw, err := EncodeProof(g, p)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Of(raw), nil
}
