// Package claimchain implements the owner-side staging/commit protocol and
// the reader-side view protocol over a hash chain (pkg/hashchain) and an
// authenticated prefix tree (pkg/prefixtree).
package claimchain

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	claimerrors "github.com/claimchain/core/infrastructure/errors"
	"github.com/claimchain/core/pkg/crypto"
)

// Label names a claim; Content is its opaque payload. Both are opaque byte
// strings per spec §3.
type Label = []byte
type Content = []byte

// claimEntry is the tree leaf value for a claim: the VRF proof alongside
// the AEAD ciphertext, so a decoder can authenticate vrf_val against the
// owner's vrf_pk (spec §4.2.2) before trusting it as a decryption key
// input.
type claimEntry struct {
	Proof      []byte `json:"proof"`
	Ciphertext []byte `json:"ct"`
}

func vrfAlpha(nonce, label []byte) []byte {
	alpha := make([]byte, 0, len(nonce)+len(label))
	alpha = append(alpha, nonce...)
	alpha = append(alpha, label...)
	return alpha
}

// encodeClaim implements spec §4.2.1: derive vrf_val, lookup_key, and the
// AEAD-sealed claim under nonce and label. The returned leafValue is what
// gets stored at lookupKey in the tree.
func encodeClaim(vrfKey *crypto.VRFKeyPair, nonce, label, content []byte) (vrfVal, lookupKey, leafValue []byte, err error) {
	vrfVal, proof, err := crypto.EvalVRF(vrfKey, vrfAlpha(nonce, label))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode claim: vrf eval: %w", err)
	}

	lookupKey = crypto.DeriveKey(crypto.TagLookup, vrfVal)
	encKey := crypto.DeriveKey(crypto.TagEnc, vrfVal)

	encClaim, err := crypto.Seal(encKey, nonce, label, content)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode claim: seal: %w", err)
	}

	leafValue, err = json.Marshal(claimEntry{Proof: proof, Ciphertext: encClaim})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode claim: marshal entry: %w", err)
	}
	return vrfVal, lookupKey, leafValue, nil
}

// decodeClaim implements spec §4.2.2: verify vrf_val against vrfPub and the
// input nonce||label, then open the AEAD ciphertext.
func decodeClaim(vrfPub *ecdsa.PublicKey, nonce, label, vrfVal, leafValue []byte) ([]byte, error) {
	var entry claimEntry
	if err := json.Unmarshal(leafValue, &entry); err != nil {
		return nil, claimerrors.DecodeError(fmt.Errorf("unmarshal claim entry: %w", err))
	}

	if !crypto.VerifyVRF(vrfPub, vrfAlpha(nonce, label), vrfVal, entry.Proof) {
		return nil, claimerrors.DecodeError(fmt.Errorf("vrf verification failed"))
	}

	encKey := crypto.DeriveKey(crypto.TagEnc, vrfVal)
	content, err := crypto.Open(encKey, nonce, label, entry.Ciphertext)
	if err != nil {
		return nil, claimerrors.DecodeError(err)
	}
	return content, nil
}

// encodeCapability implements spec §4.2.3. shared is dh(ownerDHSk, readerDHPk).
func encodeCapability(shared, nonce, label, vrfVal []byte) (capLookupKey, capCT []byte, err error) {
	capLookupKey = crypto.DeriveKey(crypto.TagCapLookup, shared, nonce, label)
	capEncKey := crypto.DeriveKey(crypto.TagCapEnc, shared, nonce, label)

	capCT, err = crypto.Seal(capEncKey, nonce, label, vrfVal)
	if err != nil {
		return nil, nil, fmt.Errorf("encode capability: seal: %w", err)
	}
	return capLookupKey, capCT, nil
}

// decodeCapability implements spec §4.2.4: recompute the shared secret's
// derived keys and open the capability ciphertext to recover vrf_val, then
// derive the claim's lookup key.
func decodeCapability(shared, nonce, label, capCT []byte) (vrfVal, claimLookupKey []byte, err error) {
	capEncKey := crypto.DeriveKey(crypto.TagCapEnc, shared, nonce, label)
	vrfVal, err = crypto.Open(capEncKey, nonce, label, capCT)
	if err != nil {
		return nil, nil, claimerrors.DecodeError(err)
	}
	claimLookupKey = crypto.DeriveKey(crypto.TagLookup, vrfVal)
	return vrfVal, claimLookupKey, nil
}

// capLookupKeyFor computes the cap_lookup_key half of spec §4.2.3/4.2.4
// directly from a shared secret, used by the view's self-vs-reader
// resolution path.
func capLookupKeyFor(shared, nonce, label []byte) []byte {
	return crypto.DeriveKey(crypto.TagCapLookup, shared, nonce, label)
}

// readerKeyString canonicalizes a reader's DH public key into the map key
// used by the staging state's grant-set bookkeeping (spec §9: "readers are
// identified by the byte-serialization of their DH public-key point").
func readerKeyString(pub *ecdh.PublicKey) string {
	return string(pub.Bytes())
}
