package ecvrf

import (
	"math/big"

	"github.com/sandrolain/oraclewasm/internal/errs"
)

// proof is the decoded form of an 80-byte ECVRF proof: gamma||c||s.
type proof struct {
	Gamma Point
	C     *big.Int
	S     *big.Int
}

func decodeProof(pi []byte) (proof, error) {
	if len(pi) != 80 {
		return proof{}, errs.NewInvalidProofFormat("proof must be exactly 80 bytes")
	}
	gamma, ok := decodePointBytes(pi[0:32])
	if !ok {
		return proof{}, errs.NewInvalidPointOnCurve("gamma does not decode to a curve point")
	}
	c := beFromLE(pi[32:48])
	s := beFromLE(pi[48:80])
	return proof{Gamma: gamma, C: c, S: s}, nil
}

// hashToCurveElligator2 implements the Elligator2 hash-to-curve
// function for suite 0x04, returning the encoded 32-byte point H.
// Locks spec.md §9 Open Question (b): the Elligator2 selector e2 is
// "the Legendre symbol of gx1 (computed as gx1^((p-1)/2) mod p) is 0
// or 1", matching what the original computes.
func hashToCurveElligator2(y, alpha []byte) ([32]byte, error) {
	input := make([]byte, 0, len(y)+len(alpha))
	input = append(input, y...)
	input = append(input, alpha...)
	u := hashToField(input)

	tv1 := mulP(big.NewInt(2), mulP(u, u))
	if tv1.Cmp(subP(prime, big.NewInt(1))) == 0 {
		tv1 = big.NewInt(0)
	}

	x1 := inverseP(addP(tv1, big.NewInt(1)))
	x1 = mulP(negP(curveA), x1)

	gx1 := addP(x1, curveA)
	gx1 = mulP(gx1, x1)
	gx1 = addP(gx1, big.NewInt(1))
	gx1 = mulP(gx1, x1)

	x2 := subP(negP(x1), curveA)
	gx2 := mulP(tv1, gx1)

	legendre := powP(gx1, new(big.Int).Rsh(subP(prime, big.NewInt(1)), 1))
	e2 := legendre.Sign() == 0 || legendre.Cmp(big.NewInt(1)) == 0

	x, gx := x2, gx2
	if e2 {
		x, gx = x1, gx1
	}

	edwardsY := mulP(subP(x, big.NewInt(1)), inverseP(addP(x, big.NewInt(1))))
	hPrelim, ok := decodePointBytes(leBytesMinimal(edwardsY))
	if !ok {
		return [32]byte{}, errs.NewInvalidPointOnCurve("elligator2 preimage does not decode")
	}

	yCoord := mulP(mulP(sqrtMinusAPlus2, x), inverseP(hPrelim.X))
	if mulP(yCoord, yCoord).Cmp(gx) != 0 {
		return [32]byte{}, errs.NewGenericErr("elligator2 candidate does not satisfy curve equation")
	}

	e3 := yCoord.Bit(0) == 1
	if e2 != e3 {
		hPrelim.X = negP(hPrelim.X)
	}

	return encodePoint(scalarMultiply(hPrelim, cofactor)), nil
}

// leBytesMinimal renders v as its minimal-length little-endian byte
// representation (no fixed width, no leading — i.e. trailing in LE —
// zero bytes), matching rug::Integer::to_digits(Order::Lsf). This is
// deliberately different from encodePoint's fixed 32-byte output: it
// feeds the one decodePointBytes call whose "sign" byte is read from
// wherever the value's own most significant byte happens to land.
func leBytesMinimal(v *big.Int) []byte {
	be := v.Bytes()
	if len(be) == 0 {
		return nil
	}
	out := make([]byte, len(be))
	for i, b := range be {
		out[len(be)-1-i] = b
	}
	return out
}

// hashPoints implements ecvrf_hash_points: SHA-512 of
// suite || 0x02 || encode(p1..p4) || 0x00, truncated to the first 16
// bytes and read as a little-endian integer.
func hashPoints(p1, p2, p3, p4 Point) *big.Int {
	e1 := encodePoint(p1)
	e2 := encodePoint(p2)
	e3 := encodePoint(p3)
	e4 := encodePoint(p4)

	s := make([]byte, 0, 1+1+32*4+1)
	s = append(s, suiteString, 0x02)
	s = append(s, e1[:]...)
	s = append(s, e2[:]...)
	s = append(s, e3[:]...)
	s = append(s, e4[:]...)
	s = append(s, 0x00)

	digest := hashSHA512(s)
	return beFromLE(digest[:16])
}

// Verify checks an ECVRF-EDWARDS25519-SHA512-ELL2 proof against a
// public key and input alpha, per spec.md §4.6. A malformed public key,
// proof, or curve point is a typed error; a well-formed but invalid
// proof simply returns false with no error.
func Verify(y, pi, alpha []byte) (bool, error) {
	if len(y) != 32 {
		return false, errs.NewInvalidPubkeyFormat("public key must be exactly 32 bytes")
	}
	pr, err := decodeProof(pi)
	if err != nil {
		return false, err
	}
	yPoint, ok := decodePointBytes(y)
	if !ok {
		return false, errs.NewInvalidPointOnCurve("public key does not decode to a curve point")
	}

	hBytes, err := hashToCurveElligator2(y, alpha)
	if err != nil {
		return false, err
	}
	hPoint, ok := decodePointBytes(hBytes[:])
	if !ok {
		return false, errs.NewInvalidPointOnCurve("hash-to-curve output does not decode")
	}

	sB := scalarMultiply(base, pr.S)
	cY := scalarMultiply(yPoint, pr.C)
	u := edwardsAdd(sB, negPoint(cY))

	sH := scalarMultiply(hPoint, pr.S)
	cG := scalarMultiply(pr.Gamma, pr.C)
	v := edwardsAdd(negPoint(cG), sH)

	cPrime := hashPoints(hPoint, pr.Gamma, u, v)
	return pr.C.Cmp(cPrime) == 0, nil
}
