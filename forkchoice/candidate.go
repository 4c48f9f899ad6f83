// Package forkchoice orders competing chain tips deterministically.
//
// Candidates are compared by a strict cascade, each step consulted only on a
// tie of the previous one:
//
//  1. participant count, higher wins
//  2. total VDF iterations, higher wins
//  3. aggregate reliability, higher wins
//  4. hash as a fixed-width byte string, lower wins
package forkchoice

import (
	"bytes"
	"math"

	"github.com/Fantom-foundation/lachesis-base/hash"

	"github.com/rony4d/go-chronos/faults"
)

// ErrNoCandidates is returned when resolving an empty candidate set.
var ErrNoCandidates = faults.New(faults.State, "no fork choice candidates")

// Candidate is one competing chain tip.
type Candidate struct {
	Hash            hash.Hash
	Participants    uint64
	TotalIterations uint64
	// Reliability is the externally supplied aggregate score. NaN ranks
	// below every number.
	Reliability float64
}

// PeerReport is what the network layer reports about a candidate.
type PeerReport struct {
	Participants uint64
	Reliability  float64
}

// Compare returns a positive number when a is preferred over b, negative
// when b is preferred, and 0 only for identical hashes.
func Compare(a, b Candidate) int {
	if a.Participants != b.Participants {
		return order(a.Participants > b.Participants)
	}
	if a.TotalIterations != b.TotalIterations {
		return order(a.TotalIterations > b.TotalIterations)
	}
	if c := compareReliability(a.Reliability, b.Reliability); c != 0 {
		return c
	}
	return bytes.Compare(b.Hash.Bytes(), a.Hash.Bytes())
}

func compareReliability(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return -1
	case bNaN:
		return 1
	case a != b:
		return order(a > b)
	}
	return 0
}

func order(aWins bool) int {
	if aWins {
		return 1
	}
	return -1
}
