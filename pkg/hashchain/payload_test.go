package hashchain

import (
	"bytes"
	"testing"

	"github.com/claimchain/core/pkg/params"
)

func testPublicParams(t *testing.T) params.PublicParams {
	t.Helper()
	lp, err := params.Generate()
	if err != nil {
		t.Fatalf("generate params: %v", err)
	}
	return lp.Public()
}

func TestPayloadExportRoundTrip(t *testing.T) {
	pub := testPublicParams(t)

	p := Payload{
		Version:   CurrentVersion,
		Timestamp: 1700000000.5,
		Nonce:     []byte("0123456789abcdef"),
		Metadata: Metadata{
			Params:       pub,
			IdentityInfo: []byte("owner@example.com"),
		},
		MTRHash: []byte("some-root-hash-bytes"),
	}

	data, err := p.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	got, err := PayloadFromExport(data)
	if err != nil {
		t.Fatalf("from export: %v", err)
	}

	if got.Version != p.Version || got.Timestamp != p.Timestamp {
		t.Fatalf("version/timestamp mismatch: %+v", got)
	}
	if !bytes.Equal(got.Nonce, p.Nonce) {
		t.Fatalf("nonce mismatch")
	}
	if !bytes.Equal(got.MTRHash, p.MTRHash) {
		t.Fatalf("mtr_hash mismatch")
	}
	if !bytes.Equal(got.Metadata.IdentityInfo, p.Metadata.IdentityInfo) {
		t.Fatalf("identity_info mismatch")
	}
	if got.Metadata.Params.SigPK.X.Cmp(pub.SigPK.X) != 0 {
		t.Fatalf("sig_pk did not round-trip")
	}
}

func TestPayloadExportEmptyTree(t *testing.T) {
	pub := testPublicParams(t)
	p := Payload{
		Version:   CurrentVersion,
		Timestamp: 1,
		Nonce:     []byte("0123456789abcdef"),
		Metadata:  Metadata{Params: pub},
	}

	data, err := p.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	got, err := PayloadFromExport(data)
	if err != nil {
		t.Fatalf("from export: %v", err)
	}
	if got.MTRHash != nil {
		t.Fatalf("expected nil mtr_hash for empty tree, got %x", got.MTRHash)
	}
}
