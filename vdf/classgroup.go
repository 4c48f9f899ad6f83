package vdf

import (
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"golang.org/x/crypto/sha3"

	"github.com/rony4d/go-chronos/utils/cser"
)

const (
	discriminantDomain = "CHRONOS_DISCRIMINANT_V1"
	hashToGroupDomain  = "CHRONOS_H2G_V1"

	// primalityRounds is the Miller-Rabin round count used everywhere.
	primalityRounds = 20

	maxDiscriminantAttempts = 10000
	maxHashToGroupAttempts  = 1 << 16

	// hashToGroupBits is the size of the prime a of a hashed form.
	hashToGroupBits = 64
)

// ClassGroup is the form class group of a negative prime discriminant D ≡ 1 (mod 4).
type ClassGroup struct {
	d        *big.Int
	identity *Form
}

// NewClassGroup validates D and returns its class group.
// D must be negative, D ≡ 1 (mod 4) and |D| must be a probable prime.
func NewClassGroup(d *big.Int) (*ClassGroup, error) {
	if d == nil || d.Sign() >= 0 {
		return nil, ErrMalformedDiscriminant
	}
	if new(big.Int).Mod(d, big.NewInt(4)).Int64() != 1 {
		return nil, ErrMalformedDiscriminant
	}
	abs := new(big.Int).Neg(d)
	if !abs.ProbablyPrime(primalityRounds) {
		return nil, ErrMalformedDiscriminant
	}

	// identity (1, 1, (1 - D) / 4)
	c := new(big.Int).Sub(big.NewInt(1), d)
	c.Rsh(c, 2)
	return &ClassGroup{
		d:        new(big.Int).Set(d),
		identity: &Form{A: big.NewInt(1), B: big.NewInt(1), C: c},
	}, nil
}

// GenerateDiscriminant derives a negative prime discriminant of the given bit
// length from seed. The same seed always yields the same discriminant.
func GenerateDiscriminant(seed []byte, bits int) (*big.Int, error) {
	if bits < 8 {
		return nil, ErrMalformedDiscriminant
	}
	nbytes := (bits + 7) / 8
	buf := make([]byte, nbytes)
	for counter := uint32(0); counter < maxDiscriminantAttempts; counter++ {
		shake := sha3.NewShake256()
		shake.Write([]byte(discriminantDomain))
		shake.Write(seed)
		shake.Write(bigendian.Uint32ToBytes(counter))
		shake.Read(buf)

		p := new(big.Int).SetBytes(buf)
		p.Rsh(p, uint(nbytes*8-bits))
		p.SetBit(p, bits-1, 1)
		// p ≡ 3 (mod 4), so D = -p ≡ 1 (mod 4)
		p.SetBit(p, 0, 1)
		p.SetBit(p, 1, 1)

		if p.ProbablyPrime(primalityRounds) {
			return p.Neg(p), nil
		}
	}
	return nil, ErrMalformedDiscriminant
}

// Discriminant returns a copy of D.
func (g *ClassGroup) Discriminant() *big.Int {
	return new(big.Int).Set(g.d)
}

func (g *ClassGroup) Name() string {
	return fmt.Sprintf("classgroup-%d", g.d.BitLen())
}

func (g *ClassGroup) Identity() Element {
	return g.identity
}

func (g *ClassGroup) Mul(x, y Element) Element {
	f, err := compose(mustForm(x), mustForm(y))
	if err != nil {
		panic(fmt.Errorf("compose %v·%v: %w", x, y, err))
	}
	return f
}

func (g *ClassGroup) Square(x Element) Element {
	return g.Mul(x, x)
}

// HashToGroup maps payload to the reduced form of a prime ideal: a is a
// hash-derived prime for which D is a quadratic residue and b is the odd
// square root of D modulo a.
func (g *ClassGroup) HashToGroup(payload []byte) (Element, error) {
	buf := make([]byte, hashToGroupBits/8)
	for counter := uint32(0); counter < maxHashToGroupAttempts; counter++ {
		shake := sha3.NewShake256()
		shake.Write([]byte(hashToGroupDomain))
		shake.Write(payload)
		shake.Write(bigendian.Uint32ToBytes(counter))
		shake.Read(buf)

		a := new(big.Int).SetBytes(buf)
		a.SetBit(a, hashToGroupBits-1, 1)
		a.SetBit(a, 0, 1)
		if !a.ProbablyPrime(primalityRounds) {
			continue
		}
		dModA := new(big.Int).Mod(g.d, a)
		if big.Jacobi(dModA, a) != 1 {
			continue
		}
		b := new(big.Int).ModSqrt(dModA, a)
		if b == nil {
			continue
		}
		if b.Bit(0) == 0 {
			b.Sub(a, b)
		}
		// c = (b² - D) / 4a, exact since b² ≡ D (mod a) and both are 1 (mod 4)
		c := new(big.Int).Mul(b, b)
		c.Sub(c, g.d)
		c.Quo(c, new(big.Int).Lsh(a, 2))
		return reduce(a, b, c), nil
	}
	return nil, ErrInvalidElement
}

func (g *ClassGroup) Validate(x Element) error {
	f, ok := x.(*Form)
	if !ok || f == nil || f.A == nil || f.B == nil || f.C == nil {
		return ErrInvalidElement
	}
	if f.A.Sign() <= 0 {
		return ErrInvalidElement
	}
	if f.discriminant().Cmp(g.d) != 0 {
		return ErrInvalidElement
	}
	if !f.isReduced() {
		return ErrInvalidElement
	}
	return nil
}

// Encode writes a and the signed b. c is implied by the discriminant.
func (g *ClassGroup) Encode(x Element) ([]byte, error) {
	if err := g.Validate(x); err != nil {
		return nil, err
	}
	f := x.(*Form)
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.BigInt(f.A)
		w.SignedBigInt(f.B)
		return nil
	})
}

func (g *ClassGroup) Decode(raw []byte) (Element, error) {
	var a, b *big.Int
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		a = r.BigInt()
		b = r.SignedBigInt()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	if a.Sign() <= 0 {
		return nil, ErrInvalidElement
	}
	num := new(big.Int).Mul(b, b)
	num.Sub(num, g.d)
	c, rem := new(big.Int).QuoRem(num, new(big.Int).Lsh(a, 2), new(big.Int))
	if rem.Sign() != 0 {
		return nil, ErrInvalidElement
	}
	f := &Form{A: a, B: b, C: c}
	if err := g.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (g *ClassGroup) Equal(x, y Element) bool {
	fx, ok1 := x.(*Form)
	fy, ok2 := y.(*Form)
	return ok1 && ok2 && fx.equal(fy)
}

func mustForm(x Element) *Form {
	f, ok := x.(*Form)
	if !ok {
		panic(fmt.Errorf("%T is not a class group element", x))
	}
	return f
}

// Inverse returns the inverse class (a, -b, c).
func (g *ClassGroup) Inverse(x Element) Element {
	f := mustForm(x)
	return reduce(f.A, new(big.Int).Neg(f.B), f.C)
}
