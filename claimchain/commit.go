package claimchain

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/claimchain/core/infrastructure/logging"
	"github.com/claimchain/core/pkg/crypto"
	"github.com/claimchain/core/pkg/hashchain"
	"github.com/claimchain/core/pkg/params"
	"github.com/claimchain/core/pkg/prefixtree"
	"github.com/prometheus/client_golang/prometheus"
)

// CommitMetrics is the set of Prometheus collectors a commit cycle reports
// to. A nil *CommitMetrics disables instrumentation.
type CommitMetrics struct {
	Commits     prometheus.Counter
	SealLatency prometheus.Histogram
}

// NewCommitMetrics registers and returns the standard claimchain commit
// metrics against reg.
func NewCommitMetrics(reg prometheus.Registerer) (*CommitMetrics, error) {
	m := &CommitMetrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "claimchain_commits_total",
			Help: "Total number of successful commits.",
		}),
		SealLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "claimchain_commit_seal_seconds",
			Help:    "Time spent sealing a staging state into a block.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if err := reg.Register(m.Commits); err != nil {
		return nil, fmt.Errorf("register commits counter: %w", err)
	}
	if err := reg.Register(m.SealLatency); err != nil {
		return nil, fmt.Errorf("register seal histogram: %w", err)
	}
	return m, nil
}

// CommitOptions configures a single commit cycle.
type CommitOptions struct {
	// Nonce overrides the randomly sampled nonce; exposed so tests can
	// commit deterministically (spec §9 "Randomness discipline").
	Nonce []byte
	// IdentityInfo is published verbatim in the block's metadata.
	IdentityInfo []byte
	// Logger receives the warning side channel for grant-without-claim
	// (spec §4.4 step 3, §7). A nil Logger silently drops the warning.
	Logger *logging.Logger
	// Metrics, if non-nil, records commit counters/latency.
	Metrics *CommitMetrics
}

// Commit implements spec §4.4: the staging state is sealed into a new
// block appended to chain. local is the owner's key material; opts may be
// the zero value.
func (s *State) Commit(ctx context.Context, local *params.LocalParams, chain *hashchain.Chain, opts CommitOptions) ([32]byte, error) {
	start := time.Now()

	nonce := opts.Nonce
	if nonce == nil {
		var err error
		nonce, err = crypto.RandomBytes(local.NonceSize)
		if err != nil {
			return [32]byte{}, fmt.Errorf("commit: sample nonce: %w", err)
		}
	}

	entries := make(map[string][]byte) // lookup_key (string) -> leaf value
	vrfIndex := make(map[string][]byte)

	for label, content := range s.pendingClaims {
		vrfVal, lookupKey, leafValue, err := encodeClaim(local.VRF, nonce, []byte(label), content)
		if err != nil {
			return [32]byte{}, fmt.Errorf("commit: encode claim %q: %w", label, err)
		}
		entries[string(lookupKey)] = leafValue
		vrfIndex[label] = vrfVal
	}

	for readerKey, labels := range s.pendingGrants {
		readerPub := s.readerPubKeys[readerKey]
		if readerPub == nil || len(labels) == 0 {
			continue
		}

		shared, err := crypto.DH(local.DH.Private, readerPub)
		if err != nil {
			return [32]byte{}, fmt.Errorf("commit: dh with reader: %w", err)
		}

		// Sorted so which label is "first" to miss a claim - and therefore
		// where this reader's grants abort - does not depend on Go's
		// randomized map iteration order (spec §4.4: "the commit is
		// deterministic given the nonce and the insertion set").
		sortedLabels := make([]string, 0, len(labels))
		for label := range labels {
			sortedLabels = append(sortedLabels, label)
		}
		sort.Strings(sortedLabels)

		for _, label := range sortedLabels {
			vrfVal, ok := vrfIndex[label]
			if !ok {
				if opts.Logger != nil {
					opts.Logger.LogGrantWithoutClaim(ctx, readerKey, []byte(label))
				}
				break // skip this reader's remaining grants for this commit cycle
			}

			capLookupKey, capCT, err := encodeCapability(shared, nonce, []byte(label), vrfVal)
			if err != nil {
				return [32]byte{}, fmt.Errorf("commit: encode capability %q: %w", label, err)
			}
			entries[string(capLookupKey)] = capCT
		}
	}

	tree := prefixtree.New()
	tree.BulkInsert(entries)

	var mtrHash []byte
	if len(entries) > 0 {
		mtrHash = tree.RootHash()
	}

	var prevHash []byte
	if head, ok := chain.Head(); ok {
		prevHash = append([]byte(nil), head[:]...)
	}

	payload := hashchain.Payload{
		Version:   hashchain.CurrentVersion,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Nonce:     nonce,
		Metadata: hashchain.Metadata{
			Params:       local.Public(),
			IdentityInfo: opts.IdentityInfo,
		},
		MTRHash:  mtrHash,
		PrevHash: prevHash,
	}

	head, err := chain.Append(ctx, payload, func(contentHash [32]byte) ([]byte, error) {
		return crypto.Sign(local.Sig.Private, contentHash[:])
	})
	if err != nil {
		return [32]byte{}, fmt.Errorf("commit: append block: %w", err)
	}

	s.committed = &committedArtifacts{
		tree:     tree,
		payload:  payload,
		nonce:    nonce,
		vrfIndex: vrfIndex,
		encItems: entries,
	}

	if opts.Metrics != nil {
		opts.Metrics.Commits.Inc()
		opts.Metrics.SealLatency.Observe(time.Since(start).Seconds())
	}

	return head, nil
}
