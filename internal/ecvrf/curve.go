// Package ecvrf implements ECVRF-EDWARDS25519-SHA512-ELL2 (suite 0x04,
// draft-irtf-cfrg-vrf-09) as a self-contained, pure verifier. It is
// grounded line-for-line on original_source/packages/crypto/src/ecvrf.rs,
// the pre-distillation Rust implementation that used rug::Integer (GMP)
// for arbitrary-precision arithmetic; math/big is its direct analogue
// here (Mod/Exp/ModInverse map onto rug's modulus/pow_mod/invert), and
// no third-party bignum package in the example corpus offers a general
// mod/mod_pow/mod_inverse surface over an arbitrary prime — the curve
// libraries visible in the pack (filippo.io/edwards25519,
// cloudflare/circl) are fixed-field-width and do not expose one.
package ecvrf

import "math/big"

var (
	prime = mustParse("57896044618658097711785492504343953926634992332820282019728792003956564819949")
	order = mustParse("7237005577332262213973186563042994240857116359379907606001950938285454250989")

	cofactor       = big.NewInt(8)
	twoInv         = mustParse("28948022309329048855892746252171976963317496166410141009864396001978282409975")
	ii             = mustParse("19681161376707505956807079304988542015446066515923890162744021073123829784752")
	curveA         = big.NewInt(486662)
	curveD         = mustParse("37095705934669439343138083508754565189542113879843219016388785533085940283555")
	sqrtMinusAPlus2 = mustParse("6853475219497561581579357271197624642482790079785650197046958215289687604742")
	baseX          = mustParse("15112221349535400772501151409588531511454012693041857206046113283949847762202")
	baseY          = mustParse("46316835694926478169428394003475163141307993866256225615783033603165251855960")

	base = Point{X: baseX, Y: baseY}

	suiteString = byte(0x04)
)

func mustParse(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("ecvrf: invalid constant literal " + s)
	}
	return v
}

// Point is an affine twisted-Edwards curve point.
type Point struct {
	X, Y *big.Int
}

// identity is the curve's neutral element, (0, 1).
func identity() Point {
	return Point{X: big.NewInt(0), Y: big.NewInt(1)}
}

// modulus computes the non-negative Euclidean residue of a mod p,
// matching rug::Integer::div_rem_euc.
func modulus(a, p *big.Int) *big.Int {
	z := new(big.Int)
	z.Mod(a, p)
	return z
}

// inverseP computes the modular inverse of a mod p, falling back to 1
// when a has no inverse — matching the original's
// a.invert(p).unwrap_or(Integer::from(1)).
func inverseP(a *big.Int) *big.Int {
	z := new(big.Int)
	if z.ModInverse(a, prime) == nil {
		return big.NewInt(1)
	}
	return z
}

func addP(a, b *big.Int) *big.Int { return modulus(new(big.Int).Add(a, b), prime) }
func subP(a, b *big.Int) *big.Int { return modulus(new(big.Int).Sub(a, b), prime) }
func mulP(a, b *big.Int) *big.Int { return modulus(new(big.Int).Mul(a, b), prime) }
func negP(a *big.Int) *big.Int    { return modulus(new(big.Int).Neg(a), prime) }

// powP computes base^exp mod p.
func powP(base, exp *big.Int) *big.Int {
	return new(big.Int).Exp(base, exp, prime)
}

// xRecover finds the unique even-parity x such that (x, y) satisfies
// the curve equation, using the p ≡ 5 (mod 8) Tonelli shortcut with
// the precomputed constant II = sqrt(-1) mod p.
func xRecover(y *big.Int) *big.Int {
	y2 := new(big.Int).Mul(y, y)
	xx := mulP(subP(y2, big.NewInt(1)), inverseP(addP(mulP(curveD, y2), big.NewInt(1))))

	exp := new(big.Int).Rsh(new(big.Int).Add(prime, big.NewInt(3)), 3)
	x := powP(xx, exp)

	if modulus(subP(mulP(x, x), xx), prime).Sign() != 0 {
		x = mulP(x, ii)
	}
	if x.Bit(0) != 0 {
		x = new(big.Int).Sub(prime, x)
	}
	return x
}

// isOnCurve checks -x^2 + y^2 - 1 - d*x^2*y^2 ≡ 0 (mod p).
func isOnCurve(p Point) bool {
	x2 := mulP(p.X, p.X)
	y2 := mulP(p.Y, p.Y)
	lhs := subP(subP(y2, x2), big.NewInt(1))
	lhs = subP(lhs, mulP(mulP(x2, y2), curveD))
	return modulus(lhs, prime).Sign() == 0
}

// encodePoint serializes p into the fixed 32-byte little-endian
// representation: y with the top bit of the last byte holding x's parity.
func encodePoint(p Point) [32]byte {
	q := new(big.Int).Lsh(new(big.Int).And(p.X, big.NewInt(1)), 255)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	q.Add(q, new(big.Int).And(p.Y, mask))

	var out [32]byte
	le := leBytes(q, 32)
	copy(out[:], le)
	return out
}

// decodePointBytes is the generic, variable-length decoder the original
// uses both for fixed 32-byte inputs (public keys, gamma, H) and for
// the internal Elligator2 call on a minimally-encoded intermediate
// value. The "sign" bit is read from the top bit of the LAST byte of
// whatever slice is given, matching rug's to_digits(Lsf) semantics of
// not padding to a fixed width.
func decodePointBytes(s []byte) (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	y := new(big.Int).And(beFromLE(s), mask)
	x := xRecover(y)
	sign := (s[len(s)-1] >> 7) & 1
	if byte(x.Bit(0)) != sign {
		x = new(big.Int).Sub(prime, x)
	}
	p := Point{X: x, Y: y}
	if !isOnCurve(p) {
		return Point{}, false
	}
	return p, true
}

// edwardsAdd is the complete addition formula for the twisted Edwards
// curve -x^2+y^2 = 1 + d*x^2*y^2.
func edwardsAdd(a, b Point) Point {
	x1y2 := new(big.Int).Mul(a.X, b.Y)
	x2y1 := new(big.Int).Mul(a.Y, b.X)
	all := new(big.Int).Mul(curveD, new(big.Int).Mul(x1y2, x2y1))

	x3 := mulP(new(big.Int).Add(x1y2, x2y1), inverseP(addP(big.NewInt(1), all)))
	y3Num := new(big.Int).Add(new(big.Int).Mul(a.X, b.X), new(big.Int).Mul(a.Y, b.Y))
	y3 := mulP(y3Num, inverseP(subP(big.NewInt(1), all)))

	return Point{X: modulus(x3, prime), Y: modulus(y3, prime)}
}

// scalarMultiply computes k*p by big-endian double-and-add, skipping
// the scalar's leading bit and starting the accumulator at p itself,
// matching the original's bit-string iteration.
func scalarMultiply(p Point, k *big.Int) Point {
	if k.Sign() == 0 {
		return identity()
	}
	bits := k.Text(2)[1:]
	q := Point{X: new(big.Int).Set(p.X), Y: new(big.Int).Set(p.Y)}
	for _, c := range bits {
		q = edwardsAdd(q, q)
		if c == '1' {
			q = edwardsAdd(q, p)
		}
	}
	return q
}

// negPoint negates a point on the curve: (x, y) -> (p - x, y).
func negPoint(p Point) Point {
	return Point{X: new(big.Int).Sub(prime, p.X), Y: p.Y}
}

// leBytes renders v as exactly n little-endian bytes, truncating any
// bits beyond n*8 (the original writes into a pre-zeroed fixed buffer
// and stops once the shifted value is exhausted).
func leBytes(v *big.Int, n int) []byte {
	out := make([]byte, n)
	t := new(big.Int).Set(v)
	mod := big.NewInt(256)
	for i := 0; i < n; i++ {
		if t.Sign() == 0 {
			break
		}
		m := new(big.Int).Mod(t, mod)
		out[i] = byte(m.Int64())
		t.Rsh(t, 8)
	}
	return out
}

// beFromLE interprets s as a little-endian integer and returns its value.
func beFromLE(s []byte) *big.Int {
	rev := make([]byte, len(s))
	for i, b := range s {
		rev[len(s)-1-i] = b
	}
	return new(big.Int).SetBytes(rev)
}
