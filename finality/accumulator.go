// Package finality accumulates chained VDF checkpoints per block and derives
// each block's finality level from its checkpoint count.
package finality

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/metrics"
	"github.com/rony4d/go-chronos/vdf"
)

// ProofVerifier checks self-contained VDF proofs. *vdf.Engine implements it.
type ProofVerifier interface {
	VerifyProof(p *vdf.Proof) bool
}

// StateStore persists encoded states keyed by block hash, and the proofs of
// each state keyed by their index. *store.Store implements it.
type StateStore interface {
	PutState(h hash.Hash, raw []byte) error
	// PutCheckpoint writes the state and its proof number index atomically.
	PutCheckpoint(h hash.Hash, index uint64, state, proof []byte) error
	DeleteState(h hash.Hash) error
	ForEachState(fn func(h hash.Hash, raw []byte) error) error
	ForEachProof(h hash.Hash, fn func(index uint64, raw []byte) error) error
}

// Option configures an Accumulator.
type Option func(*Accumulator)

// WithStore persists every state change into s, encoding proofs with g.
func WithStore(s StateStore, g vdf.Group) Option {
	return func(a *Accumulator) {
		a.store = s
		a.group = g
	}
}

// WithClock overrides the checkpoint time source.
func WithClock(clock func() time.Time) Option {
	return func(a *Accumulator) {
		a.clock = clock
	}
}

// WithLogger sets the accumulator logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Accumulator) {
		a.log = log
	}
}

type entry struct {
	mu sync.Mutex
	// state is replaced, never mutated. nil while being registered and once
	// pruned.
	state *AccumulatedState
}

// Accumulator tracks checkpoints for many blocks. Mutations of one block are
// serialized; different blocks proceed concurrently.
type Accumulator struct {
	rules    Rules
	verifier ProofVerifier
	store    StateStore
	group    vdf.Group
	clock    func() time.Time

	mu      sync.RWMutex
	entries map[hash.Hash]*entry

	haltMu sync.RWMutex
	halted error

	metrics metrics.FinalityMetrics
	log     logrus.FieldLogger
}

// New returns an empty accumulator.
func New(rules Rules, verifier ProofVerifier, opts ...Option) *Accumulator {
	a := &Accumulator{
		rules:    rules,
		verifier: verifier,
		clock:    time.Now,
		entries:  make(map[hash.Hash]*entry),
		metrics:  metrics.NewFinalityMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.OrDiscard(a.log).WithField("module", "finality")
	return a
}

// Rules returns the accumulator thresholds.
func (a *Accumulator) Rules() Rules {
	return a.rules
}

// Load restores every persisted state. Undecodable states halt the
// accumulator and return ErrCorruptState.
func (a *Accumulator) Load() (int, error) {
	if a.store == nil {
		return 0, nil
	}
	loaded := make(map[hash.Hash]*entry)
	err := a.store.ForEachState(func(h hash.Hash, raw []byte) error {
		s, err := UnmarshalState(raw)
		if err != nil {
			return err
		}
		if s.BlockHash != h {
			return ErrCorruptState
		}
		loaded[h] = &entry{state: s}
		return nil
	})
	if err == nil {
		for _, e := range loaded {
			if err = a.loadProofs(e.state); err != nil {
				break
			}
		}
	}
	if err != nil {
		a.Halt(err)
		return 0, err
	}

	a.mu.Lock()
	for h, e := range loaded {
		a.entries[h] = e
	}
	n := len(a.entries)
	a.mu.Unlock()

	a.metrics.Tracked(n)
	return len(loaded), nil
}

// RegisterBlock starts tracking h from initial. Registering a known block
// returns its current state unchanged. The new state is persisted holding only
// the lock of h.
func (a *Accumulator) RegisterBlock(h, initial hash.Hash) (*AccumulatedState, error) {
	for {
		a.mu.Lock()
		e, known := a.entries[h]
		if !known {
			e = &entry{}
			e.mu.Lock()
			a.entries[h] = e
		}
		a.mu.Unlock()

		if known {
			e.mu.Lock()
			s := e.state
			e.mu.Unlock()
			if s == nil {
				// a failed or pruned registration, its entry is going away
				runtime.Gosched()
				continue
			}
			return s.Copy(), nil
		}
		return a.register(e, h, initial)
	}
}

// register persists and publishes the first state of h. e is locked by the
// caller and unlocked here.
func (a *Accumulator) register(e *entry, h, initial hash.Hash) (*AccumulatedState, error) {
	s := &AccumulatedState{
		BlockHash:     h,
		InitialOutput: initial,
	}
	err := a.persist(s)
	if err == nil {
		e.state = s
	}
	e.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		if a.entries[h] == e {
			delete(a.entries, h)
		}
		return nil, err
	}
	a.metrics.Tracked(len(a.entries))
	a.log.WithField("block", h.Hex()).Debug("Registered block")
	return s.Copy(), nil
}

// AddCheckpoint appends proof to the history of h and returns the new
// finality level. On any error the state is left unchanged.
func (a *Accumulator) AddCheckpoint(h hash.Hash, proof *vdf.Proof) (Level, error) {
	if err := a.Halted(); err != nil {
		a.metrics.Checkpoint("halted")
		return None, ErrHalted
	}
	e := a.entry(h)
	if e == nil {
		a.metrics.Checkpoint("unknown")
		return None, ErrUnknownBlock
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		a.metrics.Checkpoint("unknown")
		return None, ErrUnknownBlock
	}
	if proof == nil {
		a.metrics.Checkpoint("invalid")
		return None, ErrInvalidProof
	}
	if proof.InputHash != e.state.ExpectedInput() {
		a.metrics.Checkpoint("unchained")
		return None, ErrBrokenChain
	}
	if !a.verifier.VerifyProof(proof) {
		a.metrics.Checkpoint("invalid")
		return None, ErrInvalidProof
	}

	next := e.state.withProof(proof, a.clock().UTC())
	if err := a.persistCheckpoint(next); err != nil {
		a.metrics.Checkpoint("error")
		return None, err
	}
	e.state = next
	a.metrics.Checkpoint("accepted")

	level := a.rules.Level(next.Checkpoints)
	a.log.WithFields(logrus.Fields{
		"block":       h.Hex(),
		"checkpoints": next.Checkpoints,
		"finality":    level,
	}).Trace("Checkpoint accepted")
	return level, nil
}

// GetFinality returns the finality of h, None for unknown blocks.
func (a *Accumulator) GetFinality(h hash.Hash) Level {
	s, ok := a.Snapshot(h)
	if !ok {
		return None
	}
	return a.rules.Level(s.Checkpoints)
}

// CompareFinality orders a and b by finality level, then by checkpoint count.
func (a *Accumulator) CompareFinality(x, y hash.Hash) int {
	sx, _ := a.Snapshot(x)
	sy, _ := a.Snapshot(y)
	return a.compare(sx, sy)
}

func (a *Accumulator) compare(x, y *AccumulatedState) int {
	var cx, cy uint64
	if x != nil {
		cx = x.Checkpoints
	}
	if y != nil {
		cy = y.Checkpoints
	}
	lx, ly := a.rules.Level(cx), a.rules.Level(cy)
	switch {
	case lx != ly:
		return cmpOrder(lx < ly)
	case cx != cy:
		return cmpOrder(cx < cy)
	}
	return 0
}

func cmpOrder(less bool) int {
	if less {
		return -1
	}
	return 1
}

// SelectChainTip returns the most final candidate. Ties keep the first seen.
// It returns false for an empty candidate list.
func (a *Accumulator) SelectChainTip(candidates []hash.Hash) (hash.Hash, bool) {
	if len(candidates) == 0 {
		return hash.Hash{}, false
	}
	snaps := a.Snapshots(candidates)
	best := 0
	for i := 1; i < len(candidates); i++ {
		if a.compare(snaps[candidates[i]], snaps[candidates[best]]) > 0 {
			best = i
		}
	}
	return candidates[best], true
}

// PruneOldStates stops tracking every block not in keep and returns how many
// were removed. It waits for in-flight checkpoints on each removed block.
func (a *Accumulator) PruneOldStates(keep map[hash.Hash]struct{}) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for h, e := range a.entries {
		if _, ok := keep[h]; ok {
			continue
		}
		e.mu.Lock()
		e.state = nil
		e.mu.Unlock()
		delete(a.entries, h)
		removed++

		if a.store != nil {
			if err := a.store.DeleteState(h); err != nil {
				a.log.WithError(err).WithField("block", h.Hex()).Warn("Failed to delete pruned state")
			}
		}
	}
	a.metrics.Tracked(len(a.entries))
	if removed > 0 {
		a.log.WithFields(logrus.Fields{"removed": removed, "kept": len(a.entries)}).Info("Pruned accumulated states")
	}
	return removed
}

// Snapshot returns a point-in-time copy of the state of h.
func (a *Accumulator) Snapshot(h hash.Hash) (*AccumulatedState, bool) {
	e := a.entry(h)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil, false
	}
	return e.state.Copy(), true
}

// Snapshots returns copies of the known states among hs.
func (a *Accumulator) Snapshots(hs []hash.Hash) map[hash.Hash]*AccumulatedState {
	out := make(map[hash.Hash]*AccumulatedState, len(hs))
	for _, h := range hs {
		if s, ok := a.Snapshot(h); ok {
			out[h] = s
		}
	}
	return out
}

// Len returns the number of tracked blocks.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.entries)
}

// Tracked returns the hashes of every tracked block.
func (a *Accumulator) Tracked() []hash.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]hash.Hash, 0, len(a.entries))
	for h := range a.entries {
		out = append(out, h)
	}
	return out
}

// Halt rejects every further checkpoint until Resume.
func (a *Accumulator) Halt(reason error) {
	a.haltMu.Lock()
	defer a.haltMu.Unlock()

	if reason == nil {
		reason = ErrHalted
	}
	a.halted = reason
	a.log.WithError(reason).Error("Checkpoint acceptance halted")
}

// Resume re-enables checkpoint acceptance after an operator restore.
func (a *Accumulator) Resume() {
	a.haltMu.Lock()
	defer a.haltMu.Unlock()

	if a.halted != nil {
		a.log.Warn("Checkpoint acceptance resumed")
	}
	a.halted = nil
}

// Halted returns the halt reason, or nil.
func (a *Accumulator) Halted() error {
	a.haltMu.RLock()
	defer a.haltMu.RUnlock()

	return a.halted
}

func (a *Accumulator) entry(h hash.Hash) *entry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.entries[h]
}

// loadProofs appends the stored proofs of s in index order and re-checks
// their chaining and count.
func (a *Accumulator) loadProofs(s *AccumulatedState) error {
	err := a.store.ForEachProof(s.BlockHash, func(index uint64, raw []byte) error {
		if index != uint64(len(s.Proofs)) {
			return fmt.Errorf("missing proof %d", len(s.Proofs))
		}
		p, err := UnmarshalProof(a.group, raw)
		if err != nil {
			return err
		}
		if p.InputHash != s.ExpectedInput() {
			return ErrBrokenChain
		}
		s.Proofs = append(s.Proofs, p)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: block %s: %v", ErrCorruptState, s.BlockHash.Hex(), err)
	}
	if uint64(len(s.Proofs)) != s.Checkpoints {
		return fmt.Errorf("%w: %d proofs for %d checkpoints", ErrCorruptState, len(s.Proofs), s.Checkpoints)
	}
	return nil
}

func (a *Accumulator) persist(s *AccumulatedState) error {
	if a.store == nil {
		return nil
	}
	raw, err := MarshalState(s)
	if err != nil {
		return err
	}
	return a.store.PutState(s.BlockHash, raw)
}

// persistCheckpoint writes the state with its newest proof only.
func (a *Accumulator) persistCheckpoint(s *AccumulatedState) error {
	if a.store == nil {
		return nil
	}
	raw, err := MarshalState(s)
	if err != nil {
		return err
	}
	index := len(s.Proofs) - 1
	proof, err := MarshalProof(a.group, s.Proofs[index])
	if err != nil {
		return err
	}
	return a.store.PutCheckpoint(s.BlockHash, uint64(index), raw, proof)
}
