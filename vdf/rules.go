package vdf

import (
	"errors"
	"fmt"
)

// GroupKind selects the hidden-order group backing the engine.
type GroupKind string

const (
	// ClassGroupKind is the imaginary quadratic class group. It needs no
	// trusted setup and is the default.
	ClassGroupKind GroupKind = "classgroup"
	// RSAGroupKind is the multiplicative group modulo the RSA-2048 challenge number.
	RSAGroupKind GroupKind = "rsa2048"
)

// ChallengeBits is the bit length of the Fiat-Shamir prime ℓ.
const ChallengeBits = 128

// Rules are the consensus parameters of the delay function.
type Rules struct {
	// Group selects the hidden-order group.
	Group GroupKind

	// DiscriminantBits is the bit length of |D| for the class group.
	DiscriminantBits int

	// DiscriminantSeed deterministically fixes D for a network. Every node of a
	// network must derive the same discriminant.
	DiscriminantSeed []byte

	// Iterations is the number of squarings per checkpoint (T).
	Iterations uint64

	// MaxIterations bounds T for evaluate and for proofs accepted from peers.
	MaxIterations uint64

	// ProgressInterval is the number of squarings between cancellation and
	// progress checkpoints.
	ProgressInterval uint64
}

// DefaultRules returns the production parameters.
func DefaultRules() Rules {
	return Rules{
		Group:            ClassGroupKind,
		DiscriminantBits: 1024,
		DiscriminantSeed: []byte("CHRONOS_GENESIS_DISCRIMINANT"),
		Iterations:       1 << 20,
		MaxIterations:    100_000_000_000,
		ProgressInterval: 100_000,
	}
}

// FakeRules returns cheap parameters for tests and local networks.
func FakeRules() Rules {
	return Rules{
		Group:            ClassGroupKind,
		DiscriminantBits: 256,
		DiscriminantSeed: []byte("CHRONOS_FAKENET_DISCRIMINANT"),
		Iterations:       64,
		MaxIterations:    1 << 20,
		ProgressInterval: 16,
	}
}

// Validate reports parameter combinations the engine cannot run with.
func (r Rules) Validate() error {
	switch r.Group {
	case ClassGroupKind:
		if r.DiscriminantBits < 64 {
			return fmt.Errorf("discriminant of %d bits is too small", r.DiscriminantBits)
		}
		if len(r.DiscriminantSeed) == 0 {
			return errors.New("empty discriminant seed")
		}
	case RSAGroupKind:
	default:
		return fmt.Errorf("unknown vdf group %q", r.Group)
	}
	if r.Iterations == 0 || r.Iterations > r.MaxIterations {
		return fmt.Errorf("iterations %d outside (0, %d]", r.Iterations, r.MaxIterations)
	}
	if r.ProgressInterval == 0 {
		return errors.New("zero progress interval")
	}
	return nil
}

// Copy returns a deep copy.
func (r Rules) Copy() Rules {
	cp := r
	cp.DiscriminantSeed = append([]byte(nil), r.DiscriminantSeed...)
	return cp
}
