// Package params bundles the signature, VRF, and DH key pairs a claimchain
// owner or reader needs, and their public-only export form.
package params

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"

	"github.com/claimchain/core/infrastructure/config"
	hexutil "github.com/claimchain/core/infrastructure/hex"
	"github.com/claimchain/core/pkg/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // grounded fingerprint helper, not a protocol primitive
)

// DefaultNonceSize is the nonce length used when neither a PublicParams nor
// the environment overrides it (spec.md §6: "Derived from PublicParams;
// default 16 bytes").
const DefaultNonceSize = 16

// LocalParams bundles an identity's secret key material.
type LocalParams struct {
	Sig *crypto.SigKeyPair
	VRF *crypto.VRFKeyPair
	DH  *crypto.DHKeyPair

	NonceSize int
}

// Generate creates a fresh LocalParams with newly generated key pairs,
// reading the nonce size from the environment (config.LoadFromEnv, the
// CLAIMCHAIN_NONCE_SIZE variable) the way the teacher's services read
// their tunables at startup.
func Generate() (*LocalParams, error) {
	return GenerateWithConfig(config.LoadFromEnv())
}

// GenerateWithConfig is Generate with an explicit config, for callers that
// already loaded one (or tests that want a deterministic nonce size without
// touching the environment).
func GenerateWithConfig(cfg config.Config) (*LocalParams, error) {
	sig, err := crypto.GenerateSigKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate sig keys: %w", err)
	}
	vrf, err := crypto.GenerateVRFKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate vrf keys: %w", err)
	}
	dh, err := crypto.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate dh keys: %w", err)
	}
	nonceSize := cfg.NonceSize
	if nonceSize <= 0 {
		nonceSize = DefaultNonceSize
	}
	return &LocalParams{Sig: sig, VRF: vrf, DH: dh, NonceSize: nonceSize}, nil
}

// Public returns the public-only export of these params.
func (p *LocalParams) Public() PublicParams {
	return PublicParams{
		SigPK:     p.Sig.Public,
		VRFPK:     p.VRF.Public,
		DHPK:      p.DH.Public,
		NonceSize: p.NonceSize,
	}
}

// PublicParams is the public export of an identity's key material, as
// published in a block's metadata.
type PublicParams struct {
	SigPK     *ecdsa.PublicKey
	VRFPK     *ecdsa.PublicKey
	DHPK      *ecdh.PublicKey
	NonceSize int
}

// EffectiveNonceSize returns NonceSize, or the environment's configured
// default (config.LoadFromEnv) if unset — covering PublicParams decoded
// from a block built before NonceSize was populated.
func (p PublicParams) EffectiveNonceSize() int {
	if p.NonceSize > 0 {
		return p.NonceSize
	}
	return config.LoadFromEnv().NonceSize
}

// Fingerprint returns a short, human-displayable identifier for this
// identity: RIPEMD160(SHA256("fingerprint" || sig_pk || vrf_pk || dh_pk)),
// the teacher repo's RIPEMD160-over-SHA256 double hash with a
// domain-separation tag on the inner hash.
func (p PublicParams) Fingerprint() ([]byte, error) {
	sigBytes, err := MarshalECDSAPublic(p.SigPK)
	if err != nil {
		return nil, err
	}
	vrfBytes, err := MarshalECDSAPublic(p.VRFPK)
	if err != nil {
		return nil, err
	}
	dhBytes := p.DHPK.Bytes()

	digest := crypto.DeriveKey("fingerprint", sigBytes, vrfBytes, dhBytes)
	r := ripemd160.New()
	r.Write(digest)
	return r.Sum(nil), nil
}

// FingerprintHex returns Fingerprint as a lowercase hex string, suitable for
// logging or display.
func (p PublicParams) FingerprintHex() (string, error) {
	fp, err := p.Fingerprint()
	if err != nil {
		return "", err
	}
	return hexutil.EncodeToString(fp), nil
}

// MarshalECDSAPublic encodes an ECDSA public key in compressed form.
func MarshalECDSAPublic(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("marshal ecdsa public: nil key")
	}
	return elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y), nil
}

// UnmarshalECDSAPublic decodes a compressed ECDSA public key on P-256.
func UnmarshalECDSAPublic(data []byte) (*ecdsa.PublicKey, error) {
	curve := crypto.Curve()
	x, y := elliptic.UnmarshalCompressed(curve, data)
	if x == nil {
		return nil, fmt.Errorf("unmarshal ecdsa public: invalid point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// MarshalDHPublic encodes a DH public key using the curve library's
// canonical (uncompressed) encoding.
func MarshalDHPublic(pub *ecdh.PublicKey) []byte {
	return pub.Bytes()
}

// UnmarshalDHPublic decodes a P-256 DH public key.
func UnmarshalDHPublic(data []byte) (*ecdh.PublicKey, error) {
	return ecdh.P256().NewPublicKey(data)
}

// Base64Encode/Base64Decode use standard base64, the same encoding
// encoding/json applies to the payload's byte-string fields (spec.md §6).
// The payload codec itself relies on encoding/json and does not call them.
func Base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func Base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
