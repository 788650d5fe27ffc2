package ecvrf

import (
	"crypto/sha512"
	"math/big"
)

// dstPrime is the fixed domain-separation tag bytes used by
// expand_message_xmd: "ECVRF_edwards25519_XMD:SHA-512_ELL2_NU_\x04\x28"
// rendered as raw bytes, exactly as in the original.
var dstPrime = []byte{
	69, 67, 86, 82, 70, 95, 101, 100, 119, 97, 114, 100, 115, 50, 53, 53,
	49, 57, 95, 88, 77, 68, 58, 83, 72, 65, 45, 53, 49, 50, 95, 69, 76,
	76, 50, 95, 78, 85, 95, 4, 40,
}

func hashSHA512(b []byte) []byte {
	h := sha512.Sum512(b)
	return h[:]
}

// expandMessageXMD is the fixed RFC 9380-style construction used by this
// suite: a 128-byte zero pad, the message, the 2-byte big-endian output
// length (48), a zero pad byte, and the DST, hashed twice.
func expandMessageXMD(msg []byte) []byte {
	msgPrime := make([]byte, 0, 128+len(msg)+2+1+len(dstPrime))
	msgPrime = append(msgPrime, make([]byte, 128)...)
	msgPrime = append(msgPrime, msg...)
	msgPrime = append(msgPrime, 0, 48)
	msgPrime = append(msgPrime, 0)
	msgPrime = append(msgPrime, dstPrime...)

	b0 := hashSHA512(msgPrime)
	final := make([]byte, 0, len(b0)+1+len(dstPrime))
	final = append(final, b0...)
	final = append(final, 1)
	final = append(final, dstPrime...)
	return hashSHA512(final)
}

// hashToField reduces the first 48 bytes of expandMessageXMD(msg),
// interpreted big-endian, mod p.
func hashToField(msg []byte) *big.Int {
	xmd := expandMessageXMD(msg)
	v := new(big.Int).SetBytes(xmd[:48])
	return modulus(v, prime)
}
