// Package chronos defines the network rules of a time chain network.
//
// Rules collect every consensus-critical parameter: the delay function, the
// finality thresholds, the ledger fan-outs and the time authority counters.
// All nodes of one network must run with identical rules.
package chronos

import (
	"encoding/json"
	"fmt"

	"github.com/rony4d/go-chronos/authority"
	"github.com/rony4d/go-chronos/finality"
	"github.com/rony4d/go-chronos/timechain"
	"github.com/rony4d/go-chronos/vdf"
)

// Network identification constants
const (
	MainNetworkID uint64 = 0xc1
	TestNetworkID uint64 = 0xc2
	FakeNetworkID uint64 = 0xc3
)

// Rules describes the complete configuration of a network.
type Rules struct {
	Name      string
	NetworkID uint64

	VDF       vdf.Rules
	Finality  finality.Rules
	Ledger    timechain.Rules
	Authority authority.Rules
}

// MainNetRules returns the production network rules.
func MainNetRules() Rules {
	return Rules{
		Name:      "main",
		NetworkID: MainNetworkID,
		VDF:       vdf.DefaultRules(),
		Finality:  finality.DefaultRules(),
		Ledger:    timechain.DefaultRules(),
		Authority: authority.DefaultRules(),
	}
}

// TestNetRules returns the test network rules: production parameters under
// a separate discriminant.
func TestNetRules() Rules {
	r := MainNetRules()
	r.Name = "test"
	r.NetworkID = TestNetworkID
	r.VDF.DiscriminantSeed = []byte("CHRONOS_TESTNET_DISCRIMINANT")
	return r
}

// FakeNetRules returns rules for local networks and tests:
//   - a 256-bit discriminant and 64 squarings per checkpoint
//   - Tau2 per Tau3 and Tau3 per Tau4 of 4 and 2
//   - one-second checkpoint cadence
func FakeNetRules() Rules {
	return Rules{
		Name:      "fake",
		NetworkID: FakeNetworkID,
		VDF:       vdf.FakeRules(),
		Finality:  finality.FakeRules(),
		Ledger:    timechain.FakeRules(),
		Authority: authority.FakeRules(),
	}
}

// RulesByName returns the preset rules of a named network.
func RulesByName(name string) (Rules, error) {
	switch name {
	case "main":
		return MainNetRules(), nil
	case "test":
		return TestNetRules(), nil
	case "fake":
		return FakeNetRules(), nil
	}
	return Rules{}, fmt.Errorf("unknown network %q", name)
}

// Validate checks every section.
func (r Rules) Validate() error {
	if err := r.VDF.Validate(); err != nil {
		return fmt.Errorf("vdf rules: %w", err)
	}
	if err := r.Finality.Validate(); err != nil {
		return fmt.Errorf("finality rules: %w", err)
	}
	if err := r.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger rules: %w", err)
	}
	if err := r.Authority.Validate(); err != nil {
		return fmt.Errorf("authority rules: %w", err)
	}
	return nil
}

// Copy creates a deep copy of Rules.
func (r Rules) Copy() Rules {
	cp := r
	cp.VDF = r.VDF.Copy()
	return cp
}

// String returns a JSON representation of Rules.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
