// Package authority decides which clock is authoritative.
//
// The authority climbs from the local clock to an active external anchor as
// evidence accumulates, falls back to the VDF when the anchor stops producing
// blocks, and returns to the anchor after a stable recovery. Levels only
// change on Tick, by at most one edge per tick, driven by counters.
package authority

import (
	"context"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/metrics"
)

// AnchorObservation is the external anchor feed as seen at one tick.
type AnchorObservation struct {
	// Height is the anchor chain height.
	Height    uint64
	BlockHash hash.Hash
	// Confirmations is the depth of our latest anchored event.
	Confirmations uint64
	// Pending is set while that event is only seen in the mempool.
	Pending bool
}

// TickInput is everything one tick evaluates.
type TickInput struct {
	// Seq orders ticks. A tick whose Seq is not above the last applied one
	// changes nothing.
	Seq uint64
	// Now is the tick time. Zero uses the authority clock.
	Now         time.Time
	TimeSamples []TimeSample
	Anchor      *AnchorObservation
}

// Status is a point-in-time view of the authority.
type Status struct {
	Level        Level
	Misses       uint32
	StableBlocks uint32
	Deactivation uint32
	ClockOffset  time.Duration
	LastSeq      uint64
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the time source of ticks without Now.
func WithClock(clock func() time.Time) Option {
	return func(a *Authority) {
		a.clock = clock
	}
}

// WithLogger sets the authority logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Authority) {
		a.log = log
	}
}

// Authority is the time authority state machine. It is safe for concurrent use.
type Authority struct {
	rules Rules
	sf    singleflight.Group
	clock func() time.Time

	mu         sync.RWMutex
	level      Level
	lastSeq    uint64
	ticked     bool
	lastHeight uint64
	seenHeight bool
	// lastBlock is when the anchor height last advanced, or when the
	// schedule restarted.
	lastBlock time.Time
	misses    uint32
	stable    uint32
	deact     uint32
	offset    time.Duration

	observersMu sync.RWMutex
	observers   []func(from, to Level)

	metrics metrics.AuthorityMetrics
	log     logrus.FieldLogger
}

// New returns an authority at LocalClock.
func New(rules Rules, opts ...Option) *Authority {
	a := &Authority{
		rules:   rules,
		clock:   time.Now,
		level:   LocalClock,
		metrics: metrics.NewAuthorityMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = logger.OrDiscard(a.log).WithField("module", "authority")
	return a
}

// OnTransition registers fn to be called after every level change.
func (a *Authority) OnTransition(fn func(from, to Level)) {
	a.observersMu.Lock()
	defer a.observersMu.Unlock()

	a.observers = append(a.observers, fn)
}

// Level returns the current level.
func (a *Authority) Level() Level {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return a.level
}

// Status returns the current level and counters.
func (a *Authority) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return Status{
		Level:        a.level,
		Misses:       a.misses,
		StableBlocks: a.stable,
		Deactivation: a.deact,
		ClockOffset:  a.offset,
		LastSeq:      a.lastSeq,
	}
}

// VDFFinalizes reports whether VDF checkpoints finalize blocks at the
// current level. Only an active anchor takes over finalization.
func (a *Authority) VDFFinalizes() bool {
	return a.Level() != AnchorActive
}

// Confirmation classifies an anchor confirmation depth.
func (a *Authority) Confirmation(depth uint64) Confirmation {
	return a.rules.Confirmation(depth)
}

// Tick evaluates one round of inputs and returns the resulting level.
// Concurrent calls share a single evaluation.
func (a *Authority) Tick(ctx context.Context, in TickInput) (Level, error) {
	if err := ctx.Err(); err != nil {
		return a.Level(), err
	}
	v, err, _ := a.sf.Do("tick", func() (interface{}, error) {
		return a.tick(in)
	})
	if err != nil {
		return a.Level(), err
	}
	return v.(Level), nil
}

func (a *Authority) tick(in TickInput) (Level, error) {
	a.mu.Lock()
	if a.ticked && in.Seq <= a.lastSeq {
		level := a.level
		a.mu.Unlock()
		return level, nil
	}
	a.ticked = true
	a.lastSeq = in.Seq
	if in.Now.IsZero() {
		in.Now = a.clock()
	}

	from := a.level
	to, err := a.next(in)
	if err == nil && to != from {
		a.level = to
	}
	if in.Anchor != nil {
		a.lastHeight = in.Anchor.Height
		a.seenHeight = true
	}
	level := a.level
	a.mu.Unlock()

	if err != nil {
		return level, err
	}
	if to != from {
		a.notify(from, to)
	}
	return level, nil
}

// next computes the successor level and updates the counters. Called with mu held.
func (a *Authority) next(in TickInput) (Level, error) {
	offset, quorum := ClockConsensus(in.TimeSamples, a.rules)
	if quorum {
		a.offset = offset
	}
	anchor := in.Anchor
	produced := anchor != nil && (!a.seenHeight || anchor.Height > a.lastHeight)

	var to Level
	switch a.level {
	case LocalClock:
		to = LocalClock
		if quorum {
			to = ExternalTimeVerified
		}
	case ExternalTimeVerified:
		to = ExternalTimeVerified
		switch {
		case !quorum:
			to = LocalClock
		case anchor != nil && (anchor.Pending || anchor.Confirmations > 0):
			to = MempoolObserved
		}
	case MempoolObserved:
		to = MempoolObserved
		switch {
		case anchor == nil || (!anchor.Pending && anchor.Confirmations == 0):
			to = ExternalTimeVerified
		case a.rules.Confirmation(anchor.Confirmations) >= Tentative:
			to = BlockIncluded
		}
	case BlockIncluded:
		to = BlockIncluded
		switch {
		case anchor == nil:
		case anchor.Confirmations == 0:
			to = MempoolObserved
		case a.rules.Confirmation(anchor.Confirmations) >= Confirmed:
			to = AnchorActive
			a.restartSchedule(in.Now)
		}
	case AnchorActive:
		to = AnchorActive
		a.schedule(produced, in.Now)
		if a.misses >= a.rules.FallbackTriggerMisses {
			to = VDFFallbackActive
			a.stable = 0
		}
	case VDFFallbackActive:
		to = VDFFallbackActive
		switch a.schedule(produced, in.Now) {
		case blockProduced:
			a.stable++
		case blockMissed:
			a.stable = 0
		}
		if a.stable >= a.rules.RecoveryStableBlocks {
			to = VDFDeactivating
			a.deact = 0
		}
	case VDFDeactivating:
		to = VDFDeactivating
		if a.schedule(produced, in.Now) == blockMissed {
			to = VDFFallbackActive
			a.stable = 0
		} else {
			a.deact++
			if a.deact >= a.rules.DeactivationTicks {
				to = AnchorActive
				a.misses = 0
			}
		}
	}

	if to != a.level && !CanTransition(a.level, to) {
		return a.level, ErrIllegalTransition
	}
	return to, nil
}

type slot uint8

const (
	blockNotDue slot = iota
	blockProduced
	blockMissed
)

// schedule classifies one tick against the anchor block schedule and keeps
// the miss counter. Called with mu held.
func (a *Authority) schedule(produced bool, now time.Time) slot {
	if produced {
		a.restartSchedule(now)
		return blockProduced
	}
	if a.lastBlock.IsZero() {
		a.restartSchedule(now)
		return blockNotDue
	}
	due := time.Duration(a.misses+1) * a.rules.AnchorBlockInterval
	if now.Sub(a.lastBlock) < due {
		return blockNotDue
	}
	a.misses++
	return blockMissed
}

func (a *Authority) restartSchedule(now time.Time) {
	a.lastBlock = now
	a.misses = 0
}

func (a *Authority) notify(from, to Level) {
	a.metrics.Transition(from.String(), to.String(), int(to))
	a.log.WithFields(logrus.Fields{
		"from": from,
		"to":   to,
	}).Info("Time authority transition")

	a.observersMu.RLock()
	observers := append([]func(from, to Level){}, a.observers...)
	a.observersMu.RUnlock()

	for _, fn := range observers {
		fn(from, to)
	}
}
