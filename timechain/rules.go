package timechain

import (
	"errors"
	"time"
)

// Rules are the aggregation parameters of the four-level chain.
type Rules struct {
	// Tau1PerTau2 is the number of minute blocks sealed into one Tau2 block.
	Tau1PerTau2 uint32
	// Tau2PerTau3 is the number of Tau2 blocks sealed into one Tau3 block.
	Tau2PerTau3 uint32
	// Tau3PerTau4 is the number of Tau3 blocks sealed into one Tau4 block.
	Tau3PerTau4 uint32

	// Tau1Interval is the wall-clock span of one Tau1 block.
	Tau1Interval time.Duration

	// BaseEmission is the Tau2 reward before halving.
	BaseEmission uint64

	// MaxPayloads and MaxPayloadSize bound a single Tau1 block.
	MaxPayloads    uint32
	MaxPayloadSize int
}

// DefaultRules returns the production fan-outs: 10 minutes per Tau2, 2016
// Tau2 (two weeks) per Tau3 and 104 Tau3 (four years) per Tau4.
func DefaultRules() Rules {
	return Rules{
		Tau1PerTau2:    10,
		Tau2PerTau3:    2016,
		Tau3PerTau4:    104,
		Tau1Interval:   time.Minute,
		BaseEmission:   3000,
		MaxPayloads:    1024,
		MaxPayloadSize: 64 * 1024,
	}
}

// FakeRules returns small fan-outs so every level seals within a test.
func FakeRules() Rules {
	cfg := DefaultRules()
	cfg.Tau2PerTau3 = 4
	cfg.Tau3PerTau4 = 2
	cfg.Tau1Interval = time.Second
	return cfg
}

// Validate rejects zero fan-outs and limits.
func (r Rules) Validate() error {
	if r.Tau1PerTau2 == 0 || r.Tau2PerTau3 == 0 || r.Tau3PerTau4 == 0 {
		return errors.New("zero tau fan-out")
	}
	if r.MaxPayloads == 0 || r.MaxPayloadSize <= 0 {
		return errors.New("zero payload limits")
	}
	return nil
}

// fanOut returns how many blocks of level-1 make one block of level.
func (r Rules) fanOut(level Level) int {
	switch level {
	case Tau2:
		return int(r.Tau1PerTau2)
	case Tau3:
		return int(r.Tau2PerTau3)
	case Tau4:
		return int(r.Tau3PerTau4)
	}
	return 0
}
