package claimchain

import (
	"bytes"
	"crypto/ecdh"
	"fmt"

	claimerrors "github.com/claimchain/core/infrastructure/errors"
	"github.com/claimchain/core/pkg/crypto"
	"github.com/claimchain/core/pkg/prefixtree"
)

// Evidence is the minimal artifact set a third party needs to verify,
// against a block's mtr_hash, that label -> content is bound for a given
// reader (spec §4.6). NodeHashes is the union of both lookups' inclusion
// paths; CapCiphertext and ClaimCiphertext are the two leaf values.
type Evidence struct {
	NodeHashes      [][]byte
	CapCiphertext   []byte
	ClaimCiphertext []byte
	CapEvidence     *prefixtree.Evidence
	ClaimEvidence   *prefixtree.Evidence
}

// ComputeEvidenceKeys implements spec §4.6 against the most recently
// committed state. ownerDH is the owner's DH private key, used to recompute
// the same shared secret the commit cycle derived for readerDHPub. An
// unknown label (one this commit never granted to readerDHPub, or never
// committed a claim for) returns the empty Evidence with no error, per the
// spec's "no leakage of which labels exist" requirement.
func (s *State) ComputeEvidenceKeys(ownerDH *ecdh.PrivateKey, readerDHPub *ecdh.PublicKey, label []byte) (Evidence, error) {
	if s.committed == nil {
		return Evidence{}, claimerrors.NotCommitted()
	}

	shared, err := crypto.DH(ownerDH, readerDHPub)
	if err != nil {
		return Evidence{}, fmt.Errorf("compute evidence: dh: %w", err)
	}

	capLookupKey := capLookupKeyFor(shared, s.committed.nonce, label)
	capCT, capEv, err := s.committed.tree.Lookup(capLookupKey)
	if err != nil {
		return Evidence{}, nil
	}

	vrfVal, ok := s.committed.vrfIndex[string(label)]
	if !ok {
		return Evidence{}, nil
	}
	claimLookupKey := crypto.DeriveKey(crypto.TagLookup, vrfVal)
	claimCT, claimEv, err := s.committed.tree.Lookup(claimLookupKey)
	if err != nil {
		return Evidence{}, nil
	}

	// Cross-check against the cached ciphertext map: the tree and the map
	// are built from the same commit cycle and must agree on every leaf
	// this evidence exposes.
	if cached, ok := s.committed.encItems[string(capLookupKey)]; ok && !bytes.Equal(cached, capCT) {
		return Evidence{}, fmt.Errorf("compute evidence: cached capability ciphertext disagrees with tree leaf")
	}
	if cached, ok := s.committed.encItems[string(claimLookupKey)]; ok && !bytes.Equal(cached, claimCT) {
		return Evidence{}, fmt.Errorf("compute evidence: cached claim ciphertext disagrees with tree leaf")
	}

	return Evidence{
		NodeHashes:      unionSiblingHashes(capEv, claimEv),
		CapCiphertext:   capCT,
		ClaimCiphertext: claimCT,
		CapEvidence:     capEv,
		ClaimEvidence:   claimEv,
	}, nil
}

func unionSiblingHashes(evs ...*prefixtree.Evidence) [][]byte {
	seen := make(map[string]struct{})
	var out [][]byte
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		for _, step := range ev.Path {
			key := string(step.SiblingHash)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, step.SiblingHash)
		}
	}
	return out
}

// VerifyEvidence checks that ev proves inclusion of its capability and
// claim leaves against root (the block's mtr_hash).
func VerifyEvidence(root []byte, ev Evidence) (bool, error) {
	if ev.CapEvidence == nil || ev.ClaimEvidence == nil {
		return false, fmt.Errorf("verify evidence: incomplete evidence")
	}
	capOK, err := prefixtree.VerifyEvidence(root, ev.CapEvidence)
	if err != nil || !capOK {
		return false, err
	}
	claimOK, err := prefixtree.VerifyEvidence(root, ev.ClaimEvidence)
	if err != nil || !claimOK {
		return false, err
	}
	return true, nil
}
