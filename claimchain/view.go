package claimchain

import (
	"bytes"
	"context"
	"fmt"

	claimerrors "github.com/claimchain/core/infrastructure/errors"
	"github.com/claimchain/core/pkg/crypto"
	"github.com/claimchain/core/pkg/hashchain"
	"github.com/claimchain/core/pkg/params"
	"github.com/claimchain/core/pkg/prefixtree"
	"github.com/prometheus/client_golang/prometheus"
)

// ViewMetrics counts lookup outcomes by result: "ok", "access_denied",
// "missing_claim", or "error" for anything else.
type ViewMetrics struct {
	Lookups *prometheus.CounterVec
}

// NewViewMetrics registers and returns the standard claimchain view
// metrics against reg.
func NewViewMetrics(reg prometheus.Registerer) (*ViewMetrics, error) {
	m := &ViewMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "claimchain_view_lookup_total",
			Help: "Total number of View.Lookup calls by outcome.",
		}, []string{"result"}),
	}
	if err := reg.Register(m.Lookups); err != nil {
		return nil, fmt.Errorf("register lookup counter: %w", err)
	}
	return m, nil
}

// View binds a chain head to a reader's LocalParams (spec §4.5). A View is
// immutable after construction: it caches the parsed payload and owner
// PublicParams for a single head block and does not follow later appends.
type View struct {
	chain   *hashchain.Chain
	local   *params.LocalParams
	head    [32]byte
	block   hashchain.Block
	payload hashchain.Payload
	owner   params.PublicParams
	tree    *prefixtree.Tree
	metrics *ViewMetrics
}

// WithMetrics attaches a ViewMetrics recorder, returning v for chaining.
func (v *View) WithMetrics(m *ViewMetrics) *View {
	v.metrics = m
	return v
}

// NewView constructs a View over chain's current head for the given
// viewer. If tree is non-nil it is used directly and its root hash checked
// against the head payload's mtr_hash; a nil tree is only valid when the
// payload's mtr_hash is also nil (an empty commit), since this package has
// no facility to reconstruct a prefix tree from the object store alone.
func NewView(ctx context.Context, chain *hashchain.Chain, local *params.LocalParams, tree *prefixtree.Tree) (*View, error) {
	head, ok := chain.Head()
	if !ok {
		return nil, fmt.Errorf("new view: chain has no blocks")
	}

	block, err := chain.Get(ctx, head)
	if err != nil {
		return nil, fmt.Errorf("new view: %w", err)
	}

	payload, err := block.Payload()
	if err != nil {
		return nil, fmt.Errorf("new view: %w", err)
	}

	if payload.Version != hashchain.CurrentVersion {
		return nil, claimerrors.VersionError(payload.Version)
	}

	if err := reconcileTree(tree, payload.MTRHash); err != nil {
		return nil, err
	}

	return &View{
		chain:   chain,
		local:   local,
		head:    head,
		block:   block,
		payload: payload,
		owner:   payload.Metadata.Params,
		tree:    tree,
	}, nil
}

// reconcileTree implements spec §4.5 step 3. mtr_hash is published as the
// literal null sentinel for an empty commit (spec §4.4 step 4), not the
// empty tree's actual root hash, so an empty tree reconciles against a nil
// mtrHash the same way a nil tree does.
func reconcileTree(tree *prefixtree.Tree, mtrHash []byte) error {
	if mtrHash == nil {
		if tree == nil || bytes.Equal(tree.RootHash(), prefixtree.New().RootHash()) {
			return nil
		}
		return claimerrors.TreeMismatch()
	}
	if tree == nil || !bytes.Equal(tree.RootHash(), mtrHash) {
		return claimerrors.TreeMismatch()
	}
	return nil
}

// isSelfView reports whether the viewer's vrf_pk equals the owner's,
// meaning the viewer is the owner and can derive vrf_val directly rather
// than going through a capability.
func (v *View) isSelfView() bool {
	ownBytes, err1 := params.MarshalECDSAPublic(v.local.VRF.Public)
	ownerBytes, err2 := params.MarshalECDSAPublic(v.owner.VRFPK)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ownBytes, ownerBytes)
}

// Lookup resolves label to content per spec §4.5: a self-view derives
// vrf_val directly; any other viewer must hold a capability reachable via
// DH with the owner's dh_pk.
func (v *View) Lookup(label []byte) ([]byte, error) {
	content, err := v.lookup(label)
	v.recordLookup(err)
	return content, err
}

func (v *View) recordLookup(err error) {
	if v.metrics == nil {
		return
	}
	switch {
	case err == nil:
		v.metrics.Lookups.WithLabelValues("ok").Inc()
	case claimerrors.Is(err, claimerrors.ErrCodeAccessDenied):
		v.metrics.Lookups.WithLabelValues("access_denied").Inc()
	case claimerrors.Is(err, claimerrors.ErrCodeMissingClaim):
		v.metrics.Lookups.WithLabelValues("missing_claim").Inc()
	default:
		v.metrics.Lookups.WithLabelValues("error").Inc()
	}
}

func (v *View) lookup(label []byte) ([]byte, error) {
	if v.tree == nil {
		return nil, claimerrors.AccessDenied()
	}

	nonce := v.payload.Nonce

	if v.isSelfView() {
		vrfVal, _, err := crypto.EvalVRF(v.local.VRF, vrfAlpha(nonce, label))
		if err != nil {
			return nil, fmt.Errorf("lookup: vrf eval: %w", err)
		}
		return v.fetchClaim(nonce, label, vrfVal)
	}

	shared, err := crypto.DH(v.local.DH.Private, v.owner.DHPK)
	if err != nil {
		return nil, fmt.Errorf("lookup: dh: %w", err)
	}

	capLookupKey := capLookupKeyFor(shared, nonce, label)
	capCT, _, lookupErr := v.tree.Lookup(capLookupKey)
	if lookupErr != nil {
		return nil, claimerrors.AccessDenied()
	}

	vrfVal, claimLookupKey, err := decodeCapability(shared, nonce, label, capCT)
	if err != nil {
		return nil, err
	}

	claimValue, _, lookupErr := v.tree.Lookup(claimLookupKey)
	if lookupErr != nil {
		return nil, claimerrors.MissingClaim()
	}

	return decodeClaim(v.owner.VRFPK, nonce, label, vrfVal, claimValue)
}

func (v *View) fetchClaim(nonce, label, vrfVal []byte) ([]byte, error) {
	lookupKey := crypto.DeriveKey(crypto.TagLookup, vrfVal)
	claimValue, _, err := v.tree.Lookup(lookupKey)
	if err != nil {
		return nil, claimerrors.AccessDenied()
	}
	return decodeClaim(v.owner.VRFPK, nonce, label, vrfVal, claimValue)
}

// Get is the non-raising variant of Lookup: ok is false on any error,
// including AccessDenied, MissingClaim, or a decode failure.
func (v *View) Get(label []byte) (content []byte, ok bool) {
	content, err := v.Lookup(label)
	if err != nil {
		return nil, false
	}
	return content, true
}

// ValidateHead recomputes the head block's content-hash (with the
// signature slot treated as canonical null, per its construction) and
// verifies it against the signature declared in the block's own aux slot,
// using the sig_pk published in that block's own metadata. This is the
// "validate()" of spec §4.5 / §9: it authenticates only the head block, not
// the chain behind it.
func (v *View) ValidateHead() error {
	contentHash := v.block.ContentHash()
	if !crypto.Verify(v.owner.SigPK, contentHash[:], v.block.Aux) {
		return claimerrors.InvalidSignature(fmt.Errorf("head block signature does not verify"))
	}
	return nil
}

// ValidateChain walks every block from the head back to the chain's first
// block, verifying each block's signature against the sig_pk declared in
// that same block's own metadata and following each block's prev_hash (its
// predecessor's object-store address) to fetch that predecessor; a prev_hash
// the store does not hold fails the walk. spec §9 calls this out
// explicitly: ValidateHead alone does not do this, and the two must stay
// distinct rather than be silently merged.
func (v *View) ValidateChain(ctx context.Context) error {
	block := v.block
	payload := v.payload
	hash := v.head

	for {
		contentHash := block.ContentHash()
		if !crypto.Verify(payload.Metadata.Params.SigPK, contentHash[:], block.Aux) {
			return claimerrors.InvalidSignature(fmt.Errorf("block %x signature does not verify", hash))
		}

		if payload.PrevHash == nil {
			return nil
		}

		var prevHash [32]byte
		copy(prevHash[:], payload.PrevHash)

		prevBlock, err := v.chain.Get(ctx, prevHash)
		if err != nil {
			return fmt.Errorf("validate chain: fetch predecessor of %x: %w", hash, err)
		}
		prevPayload, err := prevBlock.Payload()
		if err != nil {
			return fmt.Errorf("validate chain: decode predecessor of %x: %w", hash, err)
		}

		block, payload, hash = prevBlock, prevPayload, prevHash
	}
}
