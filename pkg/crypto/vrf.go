package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"math/big"
)

// An ECVRF over P-256 with SHA-256 and try-and-increment hash-to-curve,
// following the structure of ECVRF-P256-SHA256-TAI (RFC 9381). Its
// domain-separation bytes and nonce derivation differ from the RFC's, so its
// outputs do not match RFC 9381 test vectors. Scoped to claimchain's two call sites:
// EvalVRF derives a label's lookup key (vrf_val) together with its proof,
// VerifyVRF lets a verifier check that value/proof actually correspond to
// alpha under the owner's public key without learning the private key.
// Everything below this point is private plumbing for those two functions;
// nothing else in this package needs the intermediate point/scalar values.

// vrfProof is a VRF proof's three components: the Gamma point and the
// Schnorr-style (c, s) scalar pair. It is never exposed outside this file —
// EvalVRF and VerifyVRF trade only in the fixed-length serialized form.
type vrfProof struct {
	gammaX, gammaY *big.Int
	c, s           *big.Int
}

// proofLen is the wire length of a serialized vrfProof: a 33-byte
// compressed P-256 point plus two 32-byte big-endian scalars.
const proofLen = 33 + 32 + 32

var (
	// vrfSuite is the one-byte suite identifier for ECVRF-P256-SHA256-TAI.
	vrfSuite = []byte{0x01}
	p256     = elliptic.P256()
)

// EvalVRF evaluates the VRF on alpha under priv, returning the fixed-length
// output value (beta, claimchain's vrf_val) and its serialized proof.
// Deterministic: the same (priv, alpha) always yields the same value.
func EvalVRF(priv *VRFKeyPair, alpha []byte) (value, proof []byte, err error) {
	if priv == nil || priv.Private == nil {
		return nil, nil, errors.New("eval vrf: nil key")
	}
	privateKey := priv.Private
	if privateKey.Curve != p256 {
		return nil, nil, errors.New("eval vrf: only P-256 is supported")
	}

	hX, hY, err := hashToCurve(alpha, &privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	curve := privateKey.Curve
	gammaX, gammaY := curve.ScalarMult(hX, hY, privateKey.D.Bytes())

	k := deterministicNonce(privateKey, hX, hY)
	uX, uY := curve.ScalarBaseMult(k.Bytes())
	vX, vY := curve.ScalarMult(hX, hY, k.Bytes())

	c := challenge(curve, &privateKey.PublicKey, hX, hY, gammaX, gammaY, uX, uY, vX, vY)

	n := curve.Params().N
	s := new(big.Int).Mul(c, privateKey.D)
	s.Mod(s, n)
	s.Add(s, k)
	s.Mod(s, n)

	beta := proofToHash(gammaX, gammaY)
	p := &vrfProof{gammaX: gammaX, gammaY: gammaY, c: c, s: s}
	return beta, serializeProof(p), nil
}

// VerifyVRF checks that value/proof is a valid VRF output for alpha under
// pub, returning false on any malformed input or verification failure.
func VerifyVRF(pub *ecdsa.PublicKey, alpha, value, proof []byte) bool {
	if pub == nil || pub.Curve != p256 {
		return false
	}
	p, err := deserializeProof(proof)
	if err != nil {
		return false
	}
	curve := pub.Curve
	if !curve.IsOnCurve(p.gammaX, p.gammaY) {
		return false
	}

	hX, hY, err := hashToCurve(alpha, pub)
	if err != nil {
		return false
	}

	n := curve.Params().N
	negC := new(big.Int).Neg(p.c)
	negC.Mod(negC, n)

	// U = s*G - c*Y
	sGx, sGy := curve.ScalarBaseMult(p.s.Bytes())
	cYx, cYy := curve.ScalarMult(pub.X, pub.Y, negC.Bytes())
	uX, uY := curve.Add(sGx, sGy, cYx, cYy)

	// V = s*H - c*Gamma
	sHx, sHy := curve.ScalarMult(hX, hY, p.s.Bytes())
	cGammaX, cGammaY := curve.ScalarMult(p.gammaX, p.gammaY, negC.Bytes())
	vX, vY := curve.Add(sHx, sHy, cGammaX, cGammaY)

	expected := challenge(curve, pub, hX, hY, p.gammaX, p.gammaY, uX, uY, vX, vY)
	if p.c.Cmp(expected) != 0 {
		return false
	}

	beta := proofToHash(p.gammaX, p.gammaY)
	return hmac.Equal(beta, value)
}

// hashToCurve implements try-and-increment (the TAI in ECVRF-P256-SHA256-TAI):
// it hashes (suite, pk, alpha, counter) for increasing counter values until
// the resulting x-coordinate has a corresponding point on P-256, canonicalizing
// to the even-y root each time so encoder and decoder agree on one point.
func hashToCurve(alpha []byte, publicKey *ecdsa.PublicKey) (x, y *big.Int, err error) {
	params := p256.Params()
	pkBytes := elliptic.MarshalCompressed(p256, publicKey.X, publicKey.Y)

	for ctr := byte(0); ctr < 255; ctr++ {
		h := sha256.New()
		h.Write(vrfSuite)
		h.Write([]byte{0x01}) // hash_to_curve domain separator
		h.Write(pkBytes)
		h.Write(alpha)
		h.Write([]byte{ctr})
		hashValue := h.Sum(nil)

		xCandidate := new(big.Int).SetBytes(hashValue)
		xCandidate.Mod(xCandidate, params.P)

		yCandidate := liftX(xCandidate)
		if yCandidate == nil {
			continue
		}
		if yCandidate.Bit(0) == 1 {
			yCandidate.Sub(params.P, yCandidate)
		}
		if p256.IsOnCurve(xCandidate, yCandidate) {
			return xCandidate, yCandidate, nil
		}
	}
	return nil, nil, errors.New("hash to curve: no valid point found in 255 attempts")
}

// liftX solves y^2 = x^3 - 3x + b (mod p) for P-256's a = -3, returning nil
// when x has no square root mod p.
func liftX(x *big.Int) *big.Int {
	params := p256.Params()
	p := params.P

	x3 := new(big.Int).Mul(x, x)
	x3.Mul(x3, x)
	x3.Mod(x3, p)

	threeX := new(big.Int).Mul(big.NewInt(3), x)
	threeX.Mod(threeX, p)

	y2 := new(big.Int).Sub(x3, threeX)
	y2.Add(y2, params.B)
	y2.Mod(y2, p)
	if y2.Sign() < 0 {
		y2.Add(y2, p)
	}

	// p mod 4 == 3 for P-256, so the square root (if any) is y2^((p+1)/4).
	exp := new(big.Int).Add(p, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))
	y := new(big.Int).Exp(y2, exp, p)

	check := new(big.Int).Mul(y, y)
	check.Mod(check, p)
	if check.Cmp(y2) != 0 {
		return nil
	}
	return y
}

// deterministicNonce derives the per-evaluation scalar k from the private
// key and H as a single HMAC-SHA256 keyed by the private scalar over H's
// coordinates (a simplification of RFC 6979, not its HMAC-DRBG), so EvalVRF
// never touches the system RNG and stays deterministic given (priv, alpha).
func deterministicNonce(privateKey *ecdsa.PrivateKey, hX, hY *big.Int) *big.Int {
	n := privateKey.Curve.Params().N

	h := hmac.New(sha256.New, privateKey.D.Bytes())
	h.Write(hX.Bytes())
	h.Write(hY.Bytes())
	k := new(big.Int).SetBytes(h.Sum(nil))
	k.Mod(k, n)
	if k.Sign() == 0 {
		k.SetInt64(1)
	}
	return k
}

// challenge computes the Fiat-Shamir challenge scalar c binding the public
// key, H, Gamma, and the two commitment points U and V.
func challenge(curve elliptic.Curve, publicKey *ecdsa.PublicKey, hX, hY, gammaX, gammaY, uX, uY, vX, vY *big.Int) *big.Int {
	n := curve.Params().N

	h := sha256.New()
	h.Write(vrfSuite)
	h.Write([]byte{0x02}) // challenge domain separator
	h.Write(elliptic.MarshalCompressed(curve, publicKey.X, publicKey.Y))
	h.Write(elliptic.MarshalCompressed(curve, hX, hY))
	h.Write(elliptic.MarshalCompressed(curve, gammaX, gammaY))
	h.Write(elliptic.MarshalCompressed(curve, uX, uY))
	h.Write(elliptic.MarshalCompressed(curve, vX, vY))

	// RFC 9381 truncates the challenge hash to 16 bytes (128 bits).
	c := new(big.Int).SetBytes(h.Sum(nil)[:16])
	c.Mod(c, n)
	return c
}

// proofToHash derives claimchain's fixed-length vrf_val (beta) from Gamma.
// P-256's cofactor is 1, so no cofactor clearing is needed before hashing.
func proofToHash(gammaX, gammaY *big.Int) []byte {
	h := sha256.New()
	h.Write(vrfSuite)
	h.Write([]byte{0x03}) // proof_to_hash domain separator
	h.Write(elliptic.MarshalCompressed(p256, gammaX, gammaY))
	return h.Sum(nil)
}

// serializeProof packs a vrfProof into claimchain's fixed-width wire form:
// Gamma as a compressed point, then c and s as zero-padded 32-byte scalars.
func serializeProof(p *vrfProof) []byte {
	out := make([]byte, proofLen)
	copy(out[0:33], elliptic.MarshalCompressed(p256, p.gammaX, p.gammaY))
	putScalar(out[33:65], p.c)
	putScalar(out[65:97], p.s)
	return out
}

// deserializeProof reverses serializeProof, rejecting any length other than
// proofLen or a Gamma encoding that doesn't decode to a curve point.
func deserializeProof(data []byte) (*vrfProof, error) {
	if len(data) != proofLen {
		return nil, errors.New("deserialize vrf proof: invalid length")
	}
	gammaX, gammaY := elliptic.UnmarshalCompressed(p256, data[0:33])
	if gammaX == nil {
		return nil, errors.New("deserialize vrf proof: invalid gamma point")
	}
	return &vrfProof{
		gammaX: gammaX,
		gammaY: gammaY,
		c:      new(big.Int).SetBytes(data[33:65]),
		s:      new(big.Int).SetBytes(data[65:97]),
	}, nil
}

// putScalar zero-pads a scalar's big-endian bytes into a fixed-width slot.
func putScalar(dst []byte, v *big.Int) {
	b := v.Bytes()
	copy(dst[len(dst)-len(b):], b)
}
