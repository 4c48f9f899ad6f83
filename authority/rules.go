package authority

import (
	"errors"
	"time"
)

// Rules are the counters and tolerances of the time authority.
type Rules struct {
	// FallbackTriggerMisses consecutive missed anchor blocks activate the
	// VDF fallback.
	FallbackTriggerMisses uint32
	// RecoveryStableBlocks consecutive anchor blocks start deactivating the
	// fallback. It must exceed FallbackTriggerMisses.
	RecoveryStableBlocks uint32
	// DeactivationTicks stable ticks complete the deactivation.
	DeactivationTicks uint32
	// AnchorBlockInterval is the expected anchor block time. A block is
	// missed once a whole interval passes without the height advancing.
	AnchorBlockInterval time.Duration

	TentativeDepth    uint64
	ConfirmedDepth    uint64
	IrreversibleDepth uint64

	MaxClockDrift  time.Duration
	MinTimeSources int
}

// DefaultRules returns the production parameters.
func DefaultRules() Rules {
	return Rules{
		FallbackTriggerMisses: 2,
		RecoveryStableBlocks:  20,
		DeactivationTicks:     1,
		AnchorBlockInterval:   10 * time.Minute,
		TentativeDepth:        1,
		ConfirmedDepth:        6,
		IrreversibleDepth:     100,
		MaxClockDrift:         500 * time.Millisecond,
		MinTimeSources:        3,
	}
}

// FakeRules returns the production counters; fakenet ticks faster instead.
func FakeRules() Rules {
	return DefaultRules()
}

// Validate enforces the hysteresis and the ordering of confirmation depths.
func (r Rules) Validate() error {
	if r.FallbackTriggerMisses == 0 {
		return errors.New("zero fallback trigger")
	}
	if r.RecoveryStableBlocks <= r.FallbackTriggerMisses {
		return errors.New("recovery threshold must exceed the fallback trigger")
	}
	if r.DeactivationTicks == 0 {
		return errors.New("zero deactivation ticks")
	}
	if r.AnchorBlockInterval <= 0 {
		return errors.New("anchor block interval must be positive")
	}
	if !(0 < r.TentativeDepth && r.TentativeDepth < r.ConfirmedDepth && r.ConfirmedDepth < r.IrreversibleDepth) {
		return errors.New("confirmation depths must be positive and strictly increasing")
	}
	if r.MinTimeSources <= 0 || r.MaxClockDrift <= 0 {
		return errors.New("clock quorum needs sources and a drift tolerance")
	}
	return nil
}

// Confirmation classifies an anchor confirmation depth.
func (r Rules) Confirmation(depth uint64) Confirmation {
	switch {
	case depth >= r.IrreversibleDepth:
		return Irreversible
	case depth >= r.ConfirmedDepth:
		return Confirmed
	case depth >= r.TentativeDepth:
		return Tentative
	}
	return Pending
}

// Confirmation is the status of an event on the external anchor.
type Confirmation uint8

const (
	Pending Confirmation = iota
	Tentative
	Confirmed
	Irreversible
)

func (c Confirmation) String() string {
	switch c {
	case Pending:
		return "pending"
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	case Irreversible:
		return "irreversible"
	}
	return "unknown"
}
