package timechain

import "github.com/rony4d/go-chronos/faults"

var (
	// ErrNonMonotonicTime is returned when a block would be older than its predecessor.
	ErrNonMonotonicTime = faults.New(faults.Chain, "non-monotonic block timestamp")
	// ErrBrokenLink is returned when a prev-hash does not match the previous block.
	ErrBrokenLink = faults.New(faults.Chain, "broken prev-hash link")
	// ErrBadNumber is returned when block numbers are not contiguous.
	ErrBadNumber = faults.New(faults.Chain, "non-contiguous block number")
	// ErrPendingFull is returned when the lower level must be sealed first.
	ErrPendingFull = faults.New(faults.Chain, "pending buffer full, seal the next level first")
	// ErrTooManyPayloads is returned for a Tau1 block over the payload limits.
	ErrTooManyPayloads = faults.New(faults.Chain, "tau1 payload limits exceeded")
	// ErrBadSignature is returned for blocks whose signature does not verify.
	ErrBadSignature = faults.New(faults.Corruption, "invalid block signature")
	// ErrBadRoot is returned for blocks whose Merkle roots do not recompute.
	ErrBadRoot = faults.New(faults.Corruption, "merkle root mismatch")
	// ErrMissingBlock is returned when the store lacks a block the ledger expects.
	ErrMissingBlock = faults.New(faults.Corruption, "missing block")
	// ErrUnknownLevel is returned for levels outside 1..4.
	ErrUnknownLevel = faults.New(faults.Chain, "unknown tau level")
)
