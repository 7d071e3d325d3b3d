package hashchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/claimchain/core/pkg/store"
	"github.com/sirupsen/logrus"
)

// SignFunc produces a signature over a block's content-hash.
type SignFunc func(contentHash [32]byte) ([]byte, error)

// Chain is an append-only, hash-linked sequence of blocks backed by an
// ObjectStore. A Chain has a single writer: concurrent Append calls from
// multiple goroutines are serialized, but multi-writer chains (distinct
// processes racing to extend the same chain) are out of scope.
type Chain struct {
	store store.ObjectStore
	log   *logrus.Entry

	mu      sync.Mutex
	head    [32]byte
	hasHead bool
}

// New creates a chain with no blocks, backed by st.
func New(st store.ObjectStore) *Chain {
	return &Chain{store: st, log: logrus.WithField("component", "hashchain")}
}

// NewSealed creates a chain with no blocks, backed by a store.SealedStore
// wrapping backing: every block this chain appends is stored at rest as
// AES-GCM ciphertext under the plaintext block's hash, keyed from masterKey. Use this
// instead of New when the backing store (disk, object storage, a shared
// database) should not hold plaintext blocks.
func NewSealed(backing store.ObjectStore, masterKey []byte) *Chain {
	return New(store.NewSealedStore(backing, masterKey))
}

// WithLogger attaches a structured logger used for append diagnostics.
func (c *Chain) WithLogger(log *logrus.Entry) *Chain {
	c.log = log
	return c
}

// Store returns the chain's backing object store.
func (c *Chain) Store() store.ObjectStore { return c.store }

// Head returns the current tip's block hash, or ok=false if the chain is
// empty.
func (c *Chain) Head() (hash [32]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.hasHead
}

// Adopt points the chain at a previously persisted block hash without
// appending anything new, for resuming a Chain handle against a store that
// already holds blocks (e.g. a head hash read back from durable storage).
// The referenced block is not fetched or validated here; callers that need
// that should follow up with Get and the caller's validation logic.
func (c *Chain) Adopt(hash [32]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = hash
	c.hasHead = true
}

// Append serializes payload as a block body, invokes sign to produce the
// signature over the block's content-hash, attaches it as the block's aux
// data, and commits the fully-formed block to the store. It returns the new
// head hash.
//
// Step 6 of the commit protocol is the commit point: everything before this
// call is in-memory, so a caller that fails before calling Append leaves the
// chain untouched.
func (c *Chain) Append(ctx context.Context, payload Payload, sign SignFunc) ([32]byte, error) {
	body, err := payload.Export()
	if err != nil {
		return [32]byte{}, fmt.Errorf("append: %w", err)
	}

	block := NewBlock(body)
	contentHash := block.ContentHash()
	sig, err := sign(contentHash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("append: sign block: %w", err)
	}
	block.Aux = sig

	data, err := block.Serialize()
	if err != nil {
		return [32]byte{}, fmt.Errorf("append: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := c.store.Put(ctx, data)
	if err != nil {
		return [32]byte{}, fmt.Errorf("append: store block: %w", err)
	}
	c.head = hash
	c.hasHead = true
	c.log.WithFields(logrus.Fields{
		"block_id": block.ID,
		"head":     fmt.Sprintf("%x", hash),
	}).Debug("appended block")
	return hash, nil
}

// Get retrieves the block persisted under hash.
func (c *Chain) Get(ctx context.Context, hash [32]byte) (Block, error) {
	data, err := c.store.Get(ctx, hash)
	if err != nil {
		return Block{}, fmt.Errorf("get block %x: %w", hash, err)
	}
	return DeserializeBlock(data)
}
