// Package timechain keeps the four-level chain of time blocks.
//
// Tau1 blocks carry VDF outputs and event payloads. Every higher level seals
// a fixed number of blocks of the level below into one aggregate block whose
// Merkle root commits to the child block hashes and whose child roots repeat
// the roots of the level below.
package timechain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/go-chronos/inter/validatorpk"
)

// Level is the tier of a time block.
type Level uint8

const (
	Tau1 Level = 1 + iota
	Tau2
	Tau3
	Tau4
)

// Levels lists every level bottom-up.
var Levels = []Level{Tau1, Tau2, Tau3, Tau4}

func (l Level) String() string {
	if l < Tau1 || l > Tau4 {
		return fmt.Sprintf("tau?%d", uint8(l))
	}
	return fmt.Sprintf("tau%d", uint8(l))
}

// Valid reports whether l is one of Tau1..Tau4.
func (l Level) Valid() bool {
	return l >= Tau1 && l <= Tau4
}

// Header is common to all block levels.
type Header struct {
	Level     Level
	Number    idx.Block
	PrevHash  hash.Hash
	Timestamp uint64 // unix seconds
	Signer    validatorpk.PubKey
	Signature []byte
}

// BlockHeader returns the header itself, so every block embedding it
// satisfies part of Block.
func (h *Header) BlockHeader() *Header {
	return h
}

// Aggregate is the body shared by Tau2..Tau4 blocks.
type Aggregate struct {
	// Root is the Merkle root of the child block hashes.
	Root hash.Hash
	// ChildRoots are the content roots of the children, in order.
	ChildRoots []hash.Hash
}

// ContentRoot returns the aggregate Merkle root.
func (a *Aggregate) ContentRoot() hash.Hash {
	return a.Root
}

// Tau1Block is the minute block.
type Tau1Block struct {
	Header
	VDFOutput  hash.Hash
	EventsRoot hash.Hash
	Payloads   [][]byte
}

// ContentRoot returns the events root.
func (b *Tau1Block) ContentRoot() hash.Hash {
	return b.EventsRoot
}

// Tau2Block seals Tau1PerTau2 minute blocks and carries the emission.
type Tau2Block struct {
	Header
	Aggregate
	Emission uint64
	Halving  uint32
}

// Tau3Block seals Tau2PerTau3 Tau2 blocks.
type Tau3Block struct {
	Header
	Aggregate
}

// Tau4Block seals Tau3PerTau4 Tau3 blocks.
type Tau4Block struct {
	Header
	Aggregate
}

// Block is any sealed time block.
type Block interface {
	BlockHeader() *Header
	ContentRoot() hash.Hash
	Hash() hash.Hash
	SigningBytes() []byte
}

// EventsRoot is the Merkle root over the SHA-256 of each payload.
func EventsRoot(payloads [][]byte) hash.Hash {
	leaves := make([]hash.Hash, len(payloads))
	for i, p := range payloads {
		leaves[i] = hash.Of(p)
	}
	return MerkleRoot(leaves)
}

func (b *Tau1Block) Hash() hash.Hash { return hash.Of(b.SigningBytes()) }
func (b *Tau2Block) Hash() hash.Hash { return hash.Of(b.SigningBytes()) }
func (b *Tau3Block) Hash() hash.Hash { return hash.Of(b.SigningBytes()) }
func (b *Tau4Block) Hash() hash.Hash { return hash.Of(b.SigningBytes()) }

// newBlock allocates an empty block of the given level.
func newBlock(level Level) (Block, error) {
	switch level {
	case Tau1:
		return &Tau1Block{}, nil
	case Tau2:
		return &Tau2Block{}, nil
	case Tau3:
		return &Tau3Block{}, nil
	case Tau4:
		return &Tau4Block{}, nil
	}
	return nil, ErrUnknownLevel
}

// newAggregate builds an unsigned block of level on top of children.
func newAggregate(level Level, number idx.Block, prev hash.Hash, children []Block) Block {
	leaves := make([]hash.Hash, len(children))
	roots := make([]hash.Hash, len(children))
	for i, c := range children {
		leaves[i] = c.Hash()
		roots[i] = c.ContentRoot()
	}
	agg := Aggregate{
		Root:       MerkleRoot(leaves),
		ChildRoots: roots,
	}
	h := Header{
		Level:     level,
		Number:    number,
		PrevHash:  prev,
		Timestamp: children[len(children)-1].BlockHeader().Timestamp,
	}
	switch level {
	case Tau2:
		return &Tau2Block{Header: h, Aggregate: agg}
	case Tau3:
		return &Tau3Block{Header: h, Aggregate: agg}
	default:
		return &Tau4Block{Header: h, Aggregate: agg}
	}
}

func aggregateOf(b Block) *Aggregate {
	switch b := b.(type) {
	case *Tau2Block:
		return &b.Aggregate
	case *Tau3Block:
		return &b.Aggregate
	case *Tau4Block:
		return &b.Aggregate
	}
	return nil
}
