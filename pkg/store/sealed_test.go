package store

import (
	"bytes"
	"context"
	"testing"
)

func TestSealedStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sealed := NewSealedStore(NewMemory(), []byte("a master key of any length"))

	blob := []byte("owner identity_info or a tree node body")
	h, err := sealed.Put(ctx, blob)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if h != Hash(blob) {
		t.Fatalf("content address changed under sealing: got %x, want %x", h, Hash(blob))
	}

	got, err := sealed.Get(ctx, h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatalf("round-trip mismatch: got %q, want %q", got, blob)
	}
}

func TestSealedStoreCiphertextNotPlaintext(t *testing.T) {
	ctx := context.Background()
	backing := NewMemory()
	sealed := NewSealedStore(backing, []byte("another master key"))

	blob := []byte("a secret payload that must not appear in the backing store")
	h, err := sealed.Put(ctx, blob)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := backing.Get(ctx, h)
	if err != nil {
		t.Fatalf("backing get: %v", err)
	}
	if bytes.Equal(raw, blob) {
		t.Fatalf("backing store holds plaintext, expected ciphertext")
	}
}

func TestSealedStoreHasDelegates(t *testing.T) {
	ctx := context.Background()
	sealed := NewSealedStore(NewMemory(), []byte("key"))

	blob := []byte("present")
	h, err := sealed.Put(ctx, blob)
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	ok, err := sealed.Has(ctx, h)
	if err != nil || !ok {
		t.Fatalf("expected Has true, got %v err=%v", ok, err)
	}

	missing := Hash([]byte("absent"))
	ok, err = sealed.Has(ctx, missing)
	if err != nil || ok {
		t.Fatalf("expected Has false, got %v err=%v", ok, err)
	}
}
