package timechain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-chronos/faults"
	"github.com/rony4d/go-chronos/inter/validatorpk"
	"github.com/rony4d/go-chronos/utils/cser"
)

// blockVersion is the first byte of every block encoding.
const blockVersion = 1

const (
	maxPubKeyBytes    = 128
	maxSignatureBytes = 128
	// maxChildren bounds the ChildRoots of any decoded aggregate.
	maxChildren = 1 << 16
)

// ErrUnknownVersion is returned for block encodings of a newer format.
var ErrUnknownVersion = faults.New(faults.Chain, "unknown block encoding version")

func (h *Header) marshal(w *cser.Writer) {
	w.U8(blockVersion)
	w.U8(uint8(h.Level))
	w.U64(uint64(h.Number))
	w.FixedBytes(h.PrevHash.Bytes())
	w.U64(h.Timestamp)
	w.SliceBytes(h.Signer.Bytes())
}

func (h *Header) unmarshal(r *cser.Reader) error {
	if v := r.U8(); v != blockVersion {
		return ErrUnknownVersion
	}
	h.Level = Level(r.U8())
	h.Number = idx.Block(r.U64())
	r.FixedBytes(h.PrevHash[:])
	h.Timestamp = r.U64()
	signer, err := validatorpk.FromBytes(r.SliceBytes(maxPubKeyBytes))
	if err != nil {
		return err
	}
	h.Signer = signer
	return nil
}

func (a *Aggregate) marshal(w *cser.Writer) {
	w.FixedBytes(a.Root.Bytes())
	w.U32(uint32(len(a.ChildRoots)))
	for _, root := range a.ChildRoots {
		w.FixedBytes(root.Bytes())
	}
}

func (a *Aggregate) unmarshal(r *cser.Reader) error {
	r.FixedBytes(a.Root[:])
	n := r.U32()
	if n > maxChildren {
		return cser.ErrTooLargeAlloc
	}
	a.ChildRoots = make([]hash.Hash, n)
	for i := range a.ChildRoots {
		r.FixedBytes(a.ChildRoots[i][:])
	}
	return nil
}

func marshalBody(b Block, w *cser.Writer) {
	switch b := b.(type) {
	case *Tau1Block:
		w.FixedBytes(b.VDFOutput.Bytes())
		w.FixedBytes(b.EventsRoot.Bytes())
		w.U32(uint32(len(b.Payloads)))
		for _, p := range b.Payloads {
			w.SliceBytes(p)
		}
	case *Tau2Block:
		b.Aggregate.marshal(w)
		w.U64(b.Emission)
		w.U32(b.Halving)
	case *Tau3Block:
		b.Aggregate.marshal(w)
	case *Tau4Block:
		b.Aggregate.marshal(w)
	}
}

func unmarshalBody(b Block, r *cser.Reader) error {
	switch b := b.(type) {
	case *Tau1Block:
		r.FixedBytes(b.VDFOutput[:])
		r.FixedBytes(b.EventsRoot[:])
		n := r.U32()
		if n > maxChildren {
			return cser.ErrTooLargeAlloc
		}
		b.Payloads = make([][]byte, n)
		for i := range b.Payloads {
			b.Payloads[i] = r.SliceBytes(cser.MaxAlloc)
		}
	case *Tau2Block:
		if err := b.Aggregate.unmarshal(r); err != nil {
			return err
		}
		b.Emission = r.U64()
		b.Halving = r.U32()
	case *Tau3Block:
		return b.Aggregate.unmarshal(r)
	case *Tau4Block:
		return b.Aggregate.unmarshal(r)
	}
	return nil
}

// writeBlock encodes b, including its signature when signed is set.
func writeBlock(b Block, w *cser.Writer, signed bool) {
	h := b.BlockHeader()
	h.marshal(w)
	marshalBody(b, w)
	if signed {
		w.SliceBytes(h.Signature)
	}
}

func signingBytes(b Block) []byte {
	raw, _ := cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeBlock(b, w, false)
		return nil
	})
	return raw
}

// SigningBytes returns the canonical encoding without the signature.
func (b *Tau1Block) SigningBytes() []byte { return signingBytes(b) }
func (b *Tau2Block) SigningBytes() []byte { return signingBytes(b) }
func (b *Tau3Block) SigningBytes() []byte { return signingBytes(b) }
func (b *Tau4Block) SigningBytes() []byte { return signingBytes(b) }

// MarshalBlock returns the full canonical encoding of b.
func MarshalBlock(b Block) ([]byte, error) {
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		writeBlock(b, w, true)
		return nil
	})
}

// UnmarshalBlock decodes any level of block, dispatching on the level byte.
func UnmarshalBlock(raw []byte) (Block, error) {
	var b Block
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		var h Header
		if err := h.unmarshal(r); err != nil {
			return err
		}
		var err error
		if b, err = newBlock(h.Level); err != nil {
			return err
		}
		*b.BlockHeader() = h
		if err := unmarshalBody(b, r); err != nil {
			return err
		}
		b.BlockHeader().Signature = r.SliceBytes(maxSignatureBytes)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decode block: %w", err)
	}
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Tau1Block) MarshalBinary() ([]byte, error) { return MarshalBlock(b) }
func (b *Tau2Block) MarshalBinary() ([]byte, error) { return MarshalBlock(b) }
func (b *Tau3Block) MarshalBinary() ([]byte, error) { return MarshalBlock(b) }
func (b *Tau4Block) MarshalBinary() ([]byte, error) { return MarshalBlock(b) }
