package vdf

import (
	"fmt"
	"math/big"
)

// Form is the binary quadratic form ax² + bxy + cy² representing a class
// group element. Forms handed out by ClassGroup are always reduced and never
// mutated afterwards.
type Form struct {
	A, B, C *big.Int
}

func (f *Form) String() string {
	return fmt.Sprintf("(%s, %s, %s)", f.A, f.B, f.C)
}

// discriminant returns b² - 4ac.
func (f *Form) discriminant() *big.Int {
	d := new(big.Int).Mul(f.B, f.B)
	ac := new(big.Int).Mul(f.A, f.C)
	return d.Sub(d, ac.Lsh(ac, 2))
}

// isNormal reports -a < b ≤ a.
func (f *Form) isNormal() bool {
	negA := new(big.Int).Neg(f.A)
	return negA.Cmp(f.B) < 0 && f.B.Cmp(f.A) <= 0
}

// isReduced reports the unique reduced representative conditions:
// normal, a ≤ c, and b ≥ 0 when a == c.
func (f *Form) isReduced() bool {
	if !f.isNormal() {
		return false
	}
	switch f.A.Cmp(f.C) {
	case -1:
		return true
	case 0:
		return f.B.Sign() >= 0
	}
	return false
}

func (f *Form) equal(o *Form) bool {
	return f.A.Cmp(o.A) == 0 && f.B.Cmp(o.B) == 0 && f.C.Cmp(o.C) == 0
}

// normalize moves b into (-a, a] without changing the class.
func normalize(a, b, c *big.Int) (*big.Int, *big.Int, *big.Int) {
	negA := new(big.Int).Neg(a)
	if negA.Cmp(b) < 0 && b.Cmp(a) <= 0 {
		return a, b, c
	}
	twoA := new(big.Int).Lsh(a, 1)
	// r = ⌊(a - b) / 2a⌋, big.Int Div floors for a positive divisor.
	r := new(big.Int).Sub(a, b)
	r.Div(r, twoA)

	// c' = (a·r + b)·r + c with the old b
	nc := new(big.Int).Mul(a, r)
	nc.Add(nc, b)
	nc.Mul(nc, r)
	nc.Add(nc, c)

	nb := new(big.Int).Mul(twoA, r)
	nb.Add(nb, b)
	return a, nb, nc
}

// reduce returns the reduced form equivalent to (a, b, c).
func reduce(a, b, c *big.Int) *Form {
	a, b, c = normalize(a, b, c)
	for a.Cmp(c) > 0 || (a.Cmp(c) == 0 && b.Sign() < 0) {
		twoC := new(big.Int).Lsh(c, 1)
		s := new(big.Int).Add(c, b)
		s.Div(s, twoC)

		nb := new(big.Int).Mul(twoC, s)
		nb.Sub(nb, b)

		// c' = (c·s - b)·s + a
		nc := new(big.Int).Mul(c, s)
		nc.Sub(nc, b)
		nc.Mul(nc, s)
		nc.Add(nc, a)

		a, b, c = c, nb, nc
	}
	a, b, c = normalize(a, b, c)
	return &Form{A: a, B: b, C: c}
}

// solveMod solves a·x ≡ b (mod m) for m > 0. All solutions are x + k·step.
// ok is false when gcd(a, m) does not divide b.
func solveMod(a, b, m *big.Int) (x, step *big.Int, ok bool) {
	g, d := new(big.Int), new(big.Int)
	g.GCD(d, nil, a, m)

	q, r := new(big.Int).QuoRem(b, g, new(big.Int))
	if r.Sign() != 0 {
		return nil, nil, false
	}
	x = q.Mul(q, d)
	x.Mod(x, m)
	return x, new(big.Int).Quo(m, g), true
}

// compose multiplies two forms of the same discriminant (Buell, Binary
// Quadratic Forms, 6.1.1) and reduces the result.
func compose(f1, f2 *Form) (*Form, error) {
	a1, b1, c1 := f1.A, f1.B, f1.C
	a2, b2 := f2.A, f2.B

	two := big.NewInt(2)
	g := new(big.Int).Add(b1, b2)
	g.Quo(g, two)
	h := new(big.Int).Sub(b2, b1)
	h.Quo(h, two)

	w := new(big.Int).GCD(nil, nil, a1, a2)
	w.GCD(nil, nil, w, g)

	j := w
	s := new(big.Int).Quo(a1, w)
	t := new(big.Int).Quo(a2, w)
	u := new(big.Int).Quo(g, w)

	st := new(big.Int).Mul(s, t)
	tu := new(big.Int).Mul(t, u)
	hu := new(big.Int).Mul(h, u)
	sc := new(big.Int).Mul(s, c1)

	// (tu)·k ≡ hu + sc (mod st)
	kTemp, step, ok := solveMod(tu, new(big.Int).Add(hu, sc), st)
	if !ok {
		return nil, ErrInvalidElement
	}
	// (t·step)·n ≡ h - t·kTemp (mod s)
	rhs := new(big.Int).Mul(t, kTemp)
	rhs.Sub(h, rhs)
	n, _, ok := solveMod(new(big.Int).Mul(t, step), rhs, s)
	if !ok {
		return nil, ErrInvalidElement
	}

	k := new(big.Int).Mul(step, n)
	k.Add(k, kTemp)

	// l = (t·k - h) / s
	l := new(big.Int).Mul(t, k)
	l.Sub(l, h)
	l.Quo(l, s)

	// m = (tu·k - hu - sc) / st
	m := new(big.Int).Mul(tu, k)
	m.Sub(m, hu)
	m.Sub(m, sc)
	m.Quo(m, st)

	a3 := st
	b3 := new(big.Int).Mul(j, u)
	b3.Sub(b3, new(big.Int).Mul(k, t))
	b3.Sub(b3, new(big.Int).Mul(l, s))
	c3 := new(big.Int).Mul(k, l)
	c3.Sub(c3, new(big.Int).Mul(j, m))

	return reduce(a3, b3, c3), nil
}
