package authority

import (
	"fmt"

	"github.com/rony4d/go-chronos/faults"
)

// Level is the trust level of the current time source.
type Level uint8

const (
	LocalClock Level = iota
	ExternalTimeVerified
	MempoolObserved
	BlockIncluded
	AnchorActive
	VDFFallbackActive
	VDFDeactivating
)

var levelNames = [...]string{
	LocalClock:           "local_clock",
	ExternalTimeVerified: "external_time_verified",
	MempoolObserved:      "mempool_observed",
	BlockIncluded:        "block_included",
	AnchorActive:         "anchor_active",
	VDFFallbackActive:    "vdf_fallback_active",
	VDFDeactivating:      "vdf_deactivating",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ErrIllegalTransition is returned for an edge outside the transition graph.
var ErrIllegalTransition = faults.New(faults.Transition, "illegal time authority transition")

var edges = map[Level][]Level{
	LocalClock:           {ExternalTimeVerified},
	ExternalTimeVerified: {LocalClock, MempoolObserved},
	MempoolObserved:      {ExternalTimeVerified, BlockIncluded},
	BlockIncluded:        {MempoolObserved, AnchorActive},
	AnchorActive:         {VDFFallbackActive},
	VDFFallbackActive:    {VDFDeactivating},
	VDFDeactivating:      {VDFFallbackActive, AnchorActive},
}

// CanTransition reports whether from -> to is an edge of the graph.
func CanTransition(from, to Level) bool {
	for _, l := range edges[from] {
		if l == to {
			return true
		}
	}
	return false
}
