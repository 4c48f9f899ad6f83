package timechain

import (
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/metrics"
)

// Event is the input of one Tau1 block.
type Event struct {
	Timestamp uint64
	VDFOutput hash.Hash
	Payloads  [][]byte
}

// BlockStore persists encoded blocks keyed by (level, number).
type BlockStore interface {
	PutBlock(level uint8, number idx.Block, raw []byte) error
	ForEachBlock(level uint8, fn func(number idx.Block, raw []byte) error) error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore persists every sealed block into s.
func WithStore(s BlockStore) Option {
	return func(l *Ledger) {
		l.store = s
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) {
		l.log = log
	}
}

// Ledger is the four-level time chain. It is safe for concurrent use.
type Ledger struct {
	rules  Rules
	signer Signer
	store  BlockStore

	mu      sync.RWMutex
	blocks  [Tau4 + 1][]Block
	pending [Tau4][]Block

	metrics metrics.LedgerMetrics
	log     logrus.FieldLogger
}

// NewLedger returns an empty ledger that signs blocks with signer.
func NewLedger(rules Rules, signer Signer, opts ...Option) *Ledger {
	l := &Ledger{
		rules:   rules,
		signer:  signer,
		metrics: metrics.NewLedgerMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logger.OrDiscard(l.log).WithField("module", "timechain")
	return l
}

// LoadLedger rebuilds a ledger from store and verifies it. A non-nil error
// with kind faults.Corruption means the persisted chain must not be trusted.
func LoadLedger(rules Rules, signer Signer, store BlockStore, opts ...Option) (*Ledger, error) {
	l := NewLedger(rules, signer, append(opts, WithStore(store))...)
	for _, level := range Levels {
		err := store.ForEachBlock(uint8(level), func(number idx.Block, raw []byte) error {
			b, err := UnmarshalBlock(raw)
			if err != nil {
				return fmt.Errorf("%w: %s #%d: %v", ErrMissingBlock, level, number, err)
			}
			if b.BlockHeader().Level != level || b.BlockHeader().Number != number {
				return fmt.Errorf("%w: %s #%d stored under wrong key", ErrBadNumber, level, number)
			}
			l.blocks[level] = append(l.blocks[level], b)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	for _, level := range Levels[:3] {
		sealed := len(l.blocks[level+1]) * l.rules.fanOut(level+1)
		if sealed > len(l.blocks[level]) {
			return nil, fmt.Errorf("%w: %s sealed past stored %s blocks", ErrMissingBlock, level+1, level)
		}
		l.pending[level] = append([]Block(nil), l.blocks[level][sealed:]...)
	}
	if err := l.verifyChain(); err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{
		"tau1": len(l.blocks[Tau1]),
		"tau2": len(l.blocks[Tau2]),
		"tau3": len(l.blocks[Tau3]),
		"tau4": len(l.blocks[Tau4]),
	}).Info("Time chain loaded")
	return l, nil
}

// Rules returns the ledger parameters.
func (l *Ledger) Rules() Rules {
	return l.rules
}

// AppendEvent seals the next Tau1 block. On error nothing changes.
func (l *Ledger) AppendEvent(ev Event) (*Tau1Block, error) {
	if uint32(len(ev.Payloads)) > l.rules.MaxPayloads {
		return nil, ErrTooManyPayloads
	}
	for _, p := range ev.Payloads {
		if len(p) > l.rules.MaxPayloadSize {
			return nil, ErrTooManyPayloads
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending[Tau1]) >= int(l.rules.Tau1PerTau2) {
		return nil, ErrPendingFull
	}
	prev, number := l.tipLocked(Tau1)
	if prev != nil && ev.Timestamp < prev.BlockHeader().Timestamp {
		return nil, ErrNonMonotonicTime
	}

	payloads := make([][]byte, len(ev.Payloads))
	for i, p := range ev.Payloads {
		payloads[i] = append([]byte(nil), p...)
	}
	b := &Tau1Block{
		Header: Header{
			Level:     Tau1,
			Number:    number,
			PrevHash:  hashOf(prev),
			Timestamp: ev.Timestamp,
		},
		VDFOutput:  ev.VDFOutput,
		EventsRoot: EventsRoot(payloads),
		Payloads:   payloads,
	}
	if err := l.commitLocked(b); err != nil {
		return nil, err
	}
	return b, nil
}

// TrySealTau2 seals a Tau2 block once exactly Tau1PerTau2 Tau1 blocks are
// pending. It returns false without error while the buffer is short.
func (l *Ledger) TrySealTau2(emission uint64, halving uint32) (*Tau2Block, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok, err := l.trySealLocked(Tau2, emission, halving)
	if !ok || err != nil {
		return nil, ok, err
	}
	return b.(*Tau2Block), true, nil
}

// TrySealTau3 seals a Tau3 block once exactly Tau2PerTau3 Tau2 blocks are pending.
func (l *Ledger) TrySealTau3() (*Tau3Block, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok, err := l.trySealLocked(Tau3, 0, 0)
	if !ok || err != nil {
		return nil, ok, err
	}
	return b.(*Tau3Block), true, nil
}

// TrySealTau4 seals a Tau4 block once exactly Tau3PerTau4 Tau3 blocks are pending.
func (l *Ledger) TrySealTau4() (*Tau4Block, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok, err := l.trySealLocked(Tau4, 0, 0)
	if !ok || err != nil {
		return nil, ok, err
	}
	return b.(*Tau4Block), true, nil
}

// SealAll seals every level whose buffer is full, bottom-up, and returns
// the new blocks. The Tau2 reward is Reward(BaseEmission, HalvingFor()).
func (l *Ledger) SealAll() ([]Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sealed []Block
	for _, level := range Levels[1:] {
		halving := uint32(len(l.blocks[Tau4]))
		b, ok, err := l.trySealLocked(level, Reward(l.rules.BaseEmission, halving), halving)
		if err != nil {
			return sealed, err
		}
		if ok {
			sealed = append(sealed, b)
		}
	}
	return sealed, nil
}

// trySealLocked seals level from its pending children. emission and halving
// only apply to Tau2.
func (l *Ledger) trySealLocked(level Level, emission uint64, halving uint32) (Block, bool, error) {
	children := l.pending[level-1]
	if len(children) != l.rules.fanOut(level) {
		return nil, false, nil
	}
	prev, number := l.tipLocked(level)
	b := newAggregate(level, number, hashOf(prev), children)
	if prev != nil && b.BlockHeader().Timestamp < prev.BlockHeader().Timestamp {
		return nil, false, ErrNonMonotonicTime
	}
	if t2, ok := b.(*Tau2Block); ok {
		t2.Emission = emission
		t2.Halving = halving
	}
	if err := l.commitLocked(b); err != nil {
		return nil, false, err
	}
	l.pending[level-1] = nil
	return b, true, nil
}

// commitLocked signs, persists and appends b. On error nothing changes.
func (l *Ledger) commitLocked(b Block) error {
	if err := signBlock(b, l.signer); err != nil {
		return err
	}
	h := b.BlockHeader()
	if l.store != nil {
		raw, err := MarshalBlock(b)
		if err != nil {
			return err
		}
		if err := l.store.PutBlock(uint8(h.Level), h.Number, raw); err != nil {
			return err
		}
	}
	l.blocks[h.Level] = append(l.blocks[h.Level], b)
	if h.Level < Tau4 {
		l.pending[h.Level] = append(l.pending[h.Level], b)
	}
	l.metrics.Sealed(uint8(h.Level))
	l.log.WithFields(logrus.Fields{
		"level":  h.Level,
		"number": h.Number,
		"block":  b.Hash().Hex(),
	}).Debug("Sealed time block")
	return nil
}

// HalvingFor is the halving coefficient of the next Tau2 block: the number
// of sealed Tau4 blocks.
func (l *Ledger) HalvingFor() uint32 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return uint32(len(l.blocks[Tau4]))
}

// Reward is emission halved halving times. It reaches zero after 64 halvings.
func Reward(emission uint64, halving uint32) uint64 {
	if halving >= 64 {
		return 0
	}
	return emission >> halving
}

// Tip returns the last block of level, or nil.
func (l *Ledger) Tip(level Level) Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tip, _ := l.tipLocked(level)
	return tip
}

// Block returns block number of level, or nil.
func (l *Ledger) Block(level Level, number idx.Block) Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !level.Valid() || uint64(number) >= uint64(len(l.blocks[level])) {
		return nil
	}
	return l.blocks[level][number]
}

// Len returns the number of sealed blocks of level.
func (l *Ledger) Len(level Level) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !level.Valid() {
		return 0
	}
	return len(l.blocks[level])
}

// Pending returns how many blocks of level wait to be sealed into level+1.
func (l *Ledger) Pending(level Level) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !level.Valid() || level == Tau4 {
		return 0
	}
	return len(l.pending[level])
}

func (l *Ledger) tipLocked(level Level) (Block, idx.Block) {
	blocks := l.blocks[level]
	if len(blocks) == 0 {
		return nil, 0
	}
	return blocks[len(blocks)-1], idx.Block(len(blocks))
}

func hashOf(b Block) hash.Hash {
	if b == nil {
		return hash.Hash{}
	}
	return b.Hash()
}
