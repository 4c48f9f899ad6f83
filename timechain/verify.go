package timechain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// VerifyChain re-checks the whole ledger: numbering, prev-hash links,
// signatures, Merkle and child roots, and non-decreasing timestamps at every
// level. A nil result means the chain is valid.
func (l *Ledger) VerifyChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.verifyChain()
}

// VerifyChainOK is the boolean form of VerifyChain.
func (l *Ledger) VerifyChainOK() bool {
	return l.VerifyChain() == nil
}

func (l *Ledger) verifyChain() error {
	for _, level := range Levels {
		var prev Block
		for i, b := range l.blocks[level] {
			if err := l.verifyBlock(level, idx.Block(i), prev, b); err != nil {
				return err
			}
			prev = b
		}
	}
	return nil
}

func (l *Ledger) verifyBlock(level Level, number idx.Block, prev, b Block) error {
	h := b.BlockHeader()
	if h.Level != level || h.Number != number {
		return fmt.Errorf("%w: %s #%d holds %s #%d", ErrBadNumber, level, number, h.Level, h.Number)
	}
	if h.PrevHash != hashOf(prev) {
		return fmt.Errorf("%w: %s #%d", ErrBrokenLink, level, number)
	}
	if prev != nil && h.Timestamp < prev.BlockHeader().Timestamp {
		return fmt.Errorf("%w: %s #%d", ErrNonMonotonicTime, level, number)
	}
	if !VerifySignature(b) {
		return fmt.Errorf("%w: %s #%d", ErrBadSignature, level, number)
	}

	if t1, ok := b.(*Tau1Block); ok {
		if t1.EventsRoot != EventsRoot(t1.Payloads) {
			return fmt.Errorf("%w: %s #%d events root", ErrBadRoot, level, number)
		}
		return nil
	}

	k := l.rules.fanOut(level)
	from, to := int(number)*k, int(number+1)*k
	lower := l.blocks[level-1]
	if to > len(lower) {
		return fmt.Errorf("%w: %s #%d children", ErrMissingBlock, level, number)
	}
	return verifyAggregate(level, number, aggregateOf(b), lower[from:to])
}

func verifyAggregate(level Level, number idx.Block, agg *Aggregate, children []Block) error {
	if agg == nil || len(agg.ChildRoots) != len(children) {
		return fmt.Errorf("%w: %s #%d child count", ErrBadRoot, level, number)
	}
	leaves := make([]hash.Hash, len(children))
	for i, c := range children {
		leaves[i] = c.Hash()
		if agg.ChildRoots[i] != c.ContentRoot() {
			return fmt.Errorf("%w: %s #%d child root %d", ErrBadRoot, level, number, i)
		}
	}
	if agg.Root != MerkleRoot(leaves) {
		return fmt.Errorf("%w: %s #%d", ErrBadRoot, level, number)
	}
	return nil
}
