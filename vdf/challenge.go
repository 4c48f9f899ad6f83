package vdf

import (
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"golang.org/x/crypto/sha3"
)

const (
	challengeDomain      = "CHRONOS_WESOLOWSKI_CHALLENGE_V1"
	maxChallengeAttempts = 1 << 16
)

// HashToPrime derives the Fiat-Shamir challenge ℓ for (x, y, T): a
// ChallengeBits-bit probable prime drawn from SHAKE-256 over the domain tag,
// the length-prefixed canonical encodings of x and y, T and a counter.
func HashToPrime(g Group, x, y Element, iterations uint64) (*big.Int, error) {
	xRaw, err := g.Encode(x)
	if err != nil {
		return nil, err
	}
	yRaw, err := g.Encode(y)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ChallengeBits/8)
	for counter := uint32(0); counter < maxChallengeAttempts; counter++ {
		shake := sha3.NewShake256()
		shake.Write([]byte(challengeDomain))
		shake.Write(bigendian.Uint32ToBytes(uint32(len(xRaw))))
		shake.Write(xRaw)
		shake.Write(bigendian.Uint32ToBytes(uint32(len(yRaw))))
		shake.Write(yRaw)
		shake.Write(bigendian.Uint64ToBytes(iterations))
		shake.Write(bigendian.Uint32ToBytes(counter))
		shake.Read(buf)

		l := new(big.Int).SetBytes(buf)
		l.SetBit(l, ChallengeBits-1, 1)
		l.SetBit(l, 0, 1)
		if l.ProbablyPrime(primalityRounds) {
			return l, nil
		}
	}
	return nil, ErrNoChallenge
}
