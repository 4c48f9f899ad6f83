// Package vdf implements a Wesolowski verifiable delay function over a group of
// unknown order.
//
// Evaluation is T sequential squarings, y = x^(2^T). The proof is a single group
// element π = x^⌊2^T/ℓ⌋ for a Fiat-Shamir prime ℓ = H(x, y, T), and verifying it
// costs O(log T) group operations: π^ℓ · x^(2^T mod ℓ) == y.
//
// Two groups are provided. The class group of an imaginary quadratic field
// (ClassGroup) needs no trusted setup. The RSA group (RSAGroup) relies on the
// unfactored RSA-2048 challenge modulus.
package vdf

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"
)

// Element is an opaque, immutable group element.
type Element interface {
	String() string
}

// Group is a finite abelian group of unknown order.
//
// Mul and Square expect elements that passed Validate (or were produced by the
// group itself). Decode and HashToGroup only ever return valid elements.
type Group interface {
	// Name identifies the group and its parameters.
	Name() string
	// Identity returns the neutral element.
	Identity() Element
	// Mul returns x·y.
	Mul(x, y Element) Element
	// Square returns x·x.
	Square(x Element) Element
	// HashToGroup deterministically maps a payload to an element.
	HashToGroup(payload []byte) (Element, error)
	// Validate returns ErrInvalidElement if x is not a canonical element of this group.
	Validate(x Element) error
	// Encode returns the canonical encoding of x.
	Encode(x Element) ([]byte, error)
	// Decode parses and validates a canonical encoding.
	Decode(raw []byte) (Element, error)
	// Equal reports whether x and y are the same element.
	Equal(x, y Element) bool
}

// NewGroup builds the group selected by the rules.
func NewGroup(rules Rules) (Group, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	switch rules.Group {
	case RSAGroupKind:
		return NewRSAGroup(), nil
	default:
		d, err := GenerateDiscriminant(rules.DiscriminantSeed, rules.DiscriminantBits)
		if err != nil {
			return nil, err
		}
		return NewClassGroup(d)
	}
}

// ElementHash is the SHA-256 of the canonical encoding of x.
func ElementHash(g Group, x Element) (hash.Hash, error) {
	raw, err := g.Encode(x)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Of(raw), nil
}

// Pow returns x^e for e ≥ 0 by left-to-right square-and-multiply.
func Pow(g Group, x Element, e *big.Int) Element {
	acc := g.Identity()
	for i := e.BitLen() - 1; i >= 0; i-- {
		acc = g.Square(acc)
		if e.Bit(i) == 1 {
			acc = g.Mul(acc, x)
		}
	}
	return acc
}
