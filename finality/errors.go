package finality

import "github.com/rony4d/go-chronos/faults"

var (
	// ErrUnknownBlock is returned for blocks that were never registered.
	ErrUnknownBlock = faults.New(faults.State, "block is not registered")
	// ErrBrokenChain is returned for a proof whose input is not the expected output.
	ErrBrokenChain = faults.New(faults.Chain, "proof does not chain from the previous output")
	// ErrInvalidProof is returned for proofs that fail verification.
	ErrInvalidProof = faults.New(faults.Proof, "checkpoint proof does not verify")
	// ErrHalted is returned while checkpoint acceptance is halted.
	ErrHalted = faults.New(faults.Corruption, "checkpoint acceptance halted")
	// ErrCorruptState is returned for persisted states that fail to decode.
	ErrCorruptState = faults.New(faults.Corruption, "corrupt accumulated state")
)
