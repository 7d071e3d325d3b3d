package store

import (
	"context"
	"fmt"

	"github.com/claimchain/core/pkg/crypto"
)

const sealedKeyInfo = "claimchain-object-store-at-rest"

// SealedStore wraps an ObjectStore with at-rest AES-GCM encryption. Content
// addressing stays over the plaintext: Put computes the plaintext's hash,
// derives a per-blob key from masterKey via HKDF bound to that hash, and
// asks the backing store to persist the ciphertext under the plaintext's
// hash (PutAt), so callers holding a plaintext hash never need to know the
// blob is encrypted at rest.
type SealedStore struct {
	backing   ObjectStore
	masterKey []byte
}

var _ ObjectStore = (*SealedStore)(nil)

// NewSealedStore wraps backing, encrypting every blob under keys derived
// from masterKey.
func NewSealedStore(backing ObjectStore, masterKey []byte) *SealedStore {
	return &SealedStore{backing: backing, masterKey: masterKey}
}

func (s *SealedStore) blobKey(hash [32]byte) ([]byte, error) {
	return crypto.DeriveSessionKey(s.masterKey, hash[:], sealedKeyInfo, 32)
}

// Put encrypts blob and stores the ciphertext under blob's own content
// hash.
func (s *SealedStore) Put(ctx context.Context, blob []byte) ([32]byte, error) {
	hash := Hash(blob)
	key, err := s.blobKey(hash)
	if err != nil {
		return [32]byte{}, fmt.Errorf("sealed put: derive key: %w", err)
	}

	nonce := hash[:16] // deterministic per content hash: identical plaintext always seals identically, preserving idempotent re-puts.
	sealed, err := crypto.Seal(key, nonce, nil, blob)
	if err != nil {
		return [32]byte{}, fmt.Errorf("sealed put: %w", err)
	}

	if err := s.backing.PutAt(ctx, hash, sealed); err != nil {
		return [32]byte{}, fmt.Errorf("sealed put: %w", err)
	}
	return hash, nil
}

// PutAt encrypts blob and stores it under the caller-supplied hash,
// verifying blob actually hashes to it first.
func (s *SealedStore) PutAt(ctx context.Context, hash [32]byte, blob []byte) error {
	if Hash(blob) != hash {
		return fmt.Errorf("sealed put at: blob does not match hash %x", hash)
	}
	_, err := s.Put(ctx, blob)
	return err
}

// Get fetches the ciphertext stored under hash and decrypts it.
func (s *SealedStore) Get(ctx context.Context, hash [32]byte) ([]byte, error) {
	sealed, err := s.backing.Get(ctx, hash)
	if err != nil {
		return nil, err
	}

	key, err := s.blobKey(hash)
	if err != nil {
		return nil, fmt.Errorf("sealed get: derive key: %w", err)
	}
	nonce := hash[:16]
	blob, err := crypto.Open(key, nonce, nil, sealed)
	if err != nil {
		return nil, fmt.Errorf("sealed get: %w", err)
	}
	if Hash(blob) != hash {
		return nil, fmt.Errorf("sealed get: decrypted blob does not match hash %x", hash)
	}
	return blob, nil
}

// Has delegates to the backing store; presence doesn't require decryption.
func (s *SealedStore) Has(ctx context.Context, hash [32]byte) (bool, error) {
	return s.backing.Has(ctx, hash)
}
