package vdf

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/rony4d/go-chronos/utils/cser"
)

// rsa2048Modulus is the RSA-2048 challenge number. Nobody is known to hold
// its factorization, so the order of (Z/NZ)* is unknown.
const rsa2048Modulus = "2519590847565789349402718324004839857142928212620403202777713783604366202070759555626401852588078440" +
	"6918290641249515082189298559149176184502808489120072844992687392807287776735971418347270261896375014" +
	"9718246911650776133798590957000973304597488084284017974291006424586918171951187461215151726546322822" +
	"1686998754918242243363725908514186546204357679842338718477444792073993423658482382428119816381501067" +
	"4810451660377306056201619676256133844143603833904414952634432190114657544454178424020924616515723350" +
	"7787077498171257724679629263863563732899121548314381678998850404453640235273819513786365643912120103" +
	"97122822120720357"

const rsa2048Bits = 2048

const rsaHashToGroupTag = "vdf_h2g_v2"

// Residue is an element of (Z/NZ)*.
type Residue struct {
	V *big.Int
}

func (r *Residue) String() string {
	return r.V.Text(16)
}

// RSAGroup is the multiplicative group modulo an RSA modulus of unknown factorization.
type RSAGroup struct {
	n        *big.Int
	size     int
	identity *Residue
}

// NewRSAGroup returns the group modulo the RSA-2048 challenge number.
func NewRSAGroup() *RSAGroup {
	n, ok := new(big.Int).SetString(rsa2048Modulus, 10)
	if !ok || n.BitLen() != rsa2048Bits || n.Bit(0) == 0 {
		panic("bad RSA-2048 modulus constant")
	}
	return NewRSAGroupWithModulus(n)
}

// NewRSAGroupWithModulus returns the group modulo n. Only useful for tests:
// whoever knows the factors of n can forge proofs.
func NewRSAGroupWithModulus(n *big.Int) *RSAGroup {
	return &RSAGroup{
		n:        new(big.Int).Set(n),
		size:     (n.BitLen() + 7) / 8,
		identity: &Residue{V: big.NewInt(1)},
	}
}

func (g *RSAGroup) Name() string {
	return "rsa2048"
}

func (g *RSAGroup) Identity() Element {
	return g.identity
}

func (g *RSAGroup) Mul(x, y Element) Element {
	v := new(big.Int).Mul(mustResidue(x).V, mustResidue(y).V)
	return &Residue{V: v.Mod(v, g.n)}
}

func (g *RSAGroup) Square(x Element) Element {
	return g.Mul(x, x)
}

// HashToGroup expands payload with counter-mode SHA-256 to |N| + 32 bytes,
// reduces it mod N and clamps the result into [2, N-2].
func (g *RSAGroup) HashToGroup(payload []byte) (Element, error) {
	needed := g.size + 32
	expanded := make([]byte, 0, needed+sha256.Size)
	var ctr [4]byte
	for counter := uint32(0); len(expanded) < needed; counter++ {
		binary.LittleEndian.PutUint32(ctr[:], counter)
		h := sha256.New()
		h.Write(payload)
		h.Write([]byte(rsaHashToGroupTag))
		h.Write(ctr[:])
		expanded = h.Sum(expanded)
	}

	v := new(big.Int).SetBytes(expanded[:needed])
	v.Mod(v, g.n)

	two := big.NewInt(2)
	max := new(big.Int).Sub(g.n, two)
	if v.Cmp(two) < 0 {
		v.Set(two)
	} else if v.Cmp(max) > 0 {
		v.Set(max)
	}
	return &Residue{V: v}, nil
}

func (g *RSAGroup) Validate(x Element) error {
	r, ok := x.(*Residue)
	if !ok || r == nil || r.V == nil {
		return ErrInvalidElement
	}
	if r.V.Sign() <= 0 || r.V.Cmp(g.n) >= 0 {
		return ErrInvalidElement
	}
	return nil
}

// Encode writes the residue as fixed-width big-endian bytes of the modulus length.
func (g *RSAGroup) Encode(x Element) ([]byte, error) {
	if err := g.Validate(x); err != nil {
		return nil, err
	}
	return cser.MarshalBinaryAdapter(func(w *cser.Writer) error {
		w.FixedBytes(cser.PaddedBytes(x.(*Residue).V.Bytes(), g.size))
		return nil
	})
}

func (g *RSAGroup) Decode(raw []byte) (Element, error) {
	buf := make([]byte, g.size)
	err := cser.UnmarshalBinaryAdapter(raw, func(r *cser.Reader) error {
		r.FixedBytes(buf)
		return nil
	})
	if err != nil {
		return nil, ErrInvalidElement
	}
	x := &Residue{V: new(big.Int).SetBytes(buf)}
	if err := g.Validate(x); err != nil {
		return nil, err
	}
	return x, nil
}

func (g *RSAGroup) Equal(x, y Element) bool {
	rx, ok1 := x.(*Residue)
	ry, ok2 := y.(*Residue)
	return ok1 && ok2 && rx.V.Cmp(ry.V) == 0
}

func mustResidue(x Element) *Residue {
	r, ok := x.(*Residue)
	if !ok {
		panic("not an RSA group element")
	}
	return r
}
