package claimchain

import (
	"crypto/ecdh"

	claimerrors "github.com/claimchain/core/infrastructure/errors"
	"github.com/claimchain/core/pkg/hashchain"
	"github.com/claimchain/core/pkg/prefixtree"
)

// committedArtifacts is the "Committed" branch of the sum type spec §9
// calls for: everything a staging state caches after a successful commit.
// A freshly created or cleared State has no committedArtifacts, and any
// method that requires one fails NotCommitted.
type committedArtifacts struct {
	tree     *prefixtree.Tree
	payload  hashchain.Payload
	nonce    []byte
	vrfIndex map[string][]byte // label (as string) -> vrf_val
	encItems map[string][]byte // lookup_key (as string) -> leaf ciphertext, for evidence extraction
}

// State is the mutable buffer an owner holds between commits: pending
// claims and pending per-reader grant sets. Methods that require a prior
// commit (Tree, Payload, Nonce, VRFValue) operate on the committed branch
// and fail NotCommitted when nil.
type State struct {
	pendingClaims map[string][]byte              // label (as string) -> content
	pendingGrants map[string]map[string]struct{} // reader key -> label set
	readerPubKeys map[string]*ecdh.PublicKey     // reader key -> public key, for commit-time DH

	committed *committedArtifacts
}

// NewState creates an empty, uncommitted staging state.
func NewState() *State {
	return &State{
		pendingClaims: make(map[string][]byte),
		pendingGrants: make(map[string]map[string]struct{}),
		readerPubKeys: make(map[string]*ecdh.PublicKey),
	}
}

// Set inserts or overwrites a pending claim. Duplicate Set calls for the
// same label: last write wins (spec §4.4 edge cases).
func (s *State) Set(label, content []byte) {
	contentCopy := make([]byte, len(content))
	copy(contentCopy, content)
	s.pendingClaims[string(label)] = contentCopy
}

// Get returns the pending content for label, failing NotFound if absent.
func (s *State) Get(label []byte) ([]byte, error) {
	content, ok := s.pendingClaims[string(label)]
	if !ok {
		return nil, claimerrors.NotFound(label)
	}
	return content, nil
}

// Grant unions labels into readerDHPub's pending grant set.
func (s *State) Grant(readerDHPub *ecdh.PublicKey, labels [][]byte) {
	key := readerKeyString(readerDHPub)
	set, ok := s.pendingGrants[key]
	if !ok {
		set = make(map[string]struct{})
		s.pendingGrants[key] = set
	}
	s.readerPubKeys[key] = readerDHPub
	for _, label := range labels {
		set[string(label)] = struct{}{}
	}
}

// Revoke subtracts labels from readerDHPub's pending grant set.
func (s *State) Revoke(readerDHPub *ecdh.PublicKey, labels [][]byte) {
	key := readerKeyString(readerDHPub)
	set, ok := s.pendingGrants[key]
	if !ok {
		return
	}
	for _, label := range labels {
		delete(set, string(label))
	}
}

// Capabilities returns a snapshot of readerDHPub's current pending grant
// set.
func (s *State) Capabilities(readerDHPub *ecdh.PublicKey) [][]byte {
	key := readerKeyString(readerDHPub)
	set, ok := s.pendingGrants[key]
	if !ok {
		return nil
	}
	out := make([][]byte, 0, len(set))
	for label := range set {
		out = append(out, []byte(label))
	}
	return out
}

// Clear resets pending claims, pending grants, and any cached commit
// artifacts.
func (s *State) Clear() {
	s.pendingClaims = make(map[string][]byte)
	s.pendingGrants = make(map[string]map[string]struct{})
	s.readerPubKeys = make(map[string]*ecdh.PublicKey)
	s.committed = nil
}

// Tree returns the tree produced by the most recent commit.
func (s *State) Tree() (*prefixtree.Tree, error) {
	if s.committed == nil {
		return nil, claimerrors.NotCommitted()
	}
	return s.committed.tree, nil
}

// Payload returns the payload produced by the most recent commit.
func (s *State) Payload() (hashchain.Payload, error) {
	if s.committed == nil {
		return hashchain.Payload{}, claimerrors.NotCommitted()
	}
	return s.committed.payload, nil
}

// Nonce returns the nonce used by the most recent commit.
func (s *State) Nonce() ([]byte, error) {
	if s.committed == nil {
		return nil, claimerrors.NotCommitted()
	}
	return s.committed.nonce, nil
}

// VRFValue returns the vrf_val computed for label during the most recent
// commit, failing NotFound if label was not part of that commit.
func (s *State) VRFValue(label []byte) ([]byte, error) {
	if s.committed == nil {
		return nil, claimerrors.NotCommitted()
	}
	val, ok := s.committed.vrfIndex[string(label)]
	if !ok {
		return nil, claimerrors.NotFound(label)
	}
	return val, nil
}

// EncItems returns the full lookup_key (or cap_lookup_key) -> ciphertext
// map the most recent commit inserted into the tree. ComputeEvidenceKeys
// needs this to return raw ciphertext bytes, not just their hashes.
func (s *State) EncItems() (map[string][]byte, error) {
	if s.committed == nil {
		return nil, claimerrors.NotCommitted()
	}
	return s.committed.encItems, nil
}
