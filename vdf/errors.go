package vdf

import "github.com/rony4d/go-chronos/faults"

var (
	// ErrInvalidElement is returned for malformed or foreign group elements.
	ErrInvalidElement = faults.New(faults.Crypto, "invalid group element")
	// ErrMalformedDiscriminant is returned for discriminants that do not define a usable class group.
	ErrMalformedDiscriminant = faults.New(faults.Crypto, "malformed discriminant")
	// ErrInvalidProof is returned for proofs that do not verify or are degenerate.
	ErrInvalidProof = faults.New(faults.Proof, "invalid vdf proof")
	// ErrIterations is returned for a zero or oversized iteration count.
	ErrIterations = faults.New(faults.Proof, "iteration count out of range")
	// ErrNoChallenge is returned when hashing into prime space exhausts its attempts.
	ErrNoChallenge = faults.New(faults.Crypto, "no challenge prime found")
)
