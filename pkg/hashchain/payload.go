package hashchain

import (
	"encoding/json"
	"fmt"

	"github.com/claimchain/core/pkg/params"
)

// CurrentVersion is the protocol version this package writes. Readers must
// reject payloads carrying an unknown major version.
const CurrentVersion uint32 = 1

// Metadata carries the owner's public key material and optional identity
// information, published as part of every block's payload.
type Metadata struct {
	Params       params.PublicParams
	IdentityInfo []byte
}

// Payload is the logical content of a block: everything except the
// signature.
type Payload struct {
	Version   uint32
	Timestamp float64
	Nonce     []byte
	Metadata  Metadata
	// MTRHash is the tree's root hash, or nil if no entries were committed.
	MTRHash []byte
	// PrevHash links this block to its predecessor's block hash (the
	// predecessor's object-store address, as Chain.Head returns it), nil
	// for the chain's first block. This is the linkage validate_chain walks;
	// validate_head never looks at it.
	PrevHash []byte
}

// metadataWire is the self-describing JSON form of Metadata. encoding/json
// base64-encodes every []byte field automatically, giving the "ascii-b64
// bytes" wire encoding spec.md §6 requires without any custom codec.
type metadataWire struct {
	SigPK        []byte `json:"sig_pk"`
	VRFPK        []byte `json:"vrf_pk"`
	DHPK         []byte `json:"dh_pk"`
	NonceSize    int    `json:"nonce_size"`
	IdentityInfo []byte `json:"identity_info,omitempty"`
}

type payloadWire struct {
	Version   uint32       `json:"version"`
	Timestamp float64      `json:"timestamp"`
	Nonce     []byte       `json:"nonce"`
	Metadata  metadataWire `json:"metadata"`
	MTRHash   []byte       `json:"mtr_hash,omitempty"`
	PrevHash  []byte       `json:"prev_hash,omitempty"`
}

// Export serializes the payload to its wire form.
func (p Payload) Export() ([]byte, error) {
	sigPK, err := params.MarshalECDSAPublic(p.Metadata.Params.SigPK)
	if err != nil {
		return nil, fmt.Errorf("export payload: %w", err)
	}
	vrfPK, err := params.MarshalECDSAPublic(p.Metadata.Params.VRFPK)
	if err != nil {
		return nil, fmt.Errorf("export payload: %w", err)
	}

	wire := payloadWire{
		Version:   p.Version,
		Timestamp: p.Timestamp,
		Nonce:     p.Nonce,
		Metadata: metadataWire{
			SigPK:        sigPK,
			VRFPK:        vrfPK,
			DHPK:         params.MarshalDHPublic(p.Metadata.Params.DHPK),
			NonceSize:    p.Metadata.Params.NonceSize,
			IdentityInfo: p.Metadata.IdentityInfo,
		},
		MTRHash:  p.MTRHash,
		PrevHash: p.PrevHash,
	}
	return json.Marshal(wire)
}

// PayloadFromExport parses a payload previously produced by Export.
func PayloadFromExport(data []byte) (Payload, error) {
	var wire payloadWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}

	sigPK, err := params.UnmarshalECDSAPublic(wire.Metadata.SigPK)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload sig_pk: %w", err)
	}
	vrfPK, err := params.UnmarshalECDSAPublic(wire.Metadata.VRFPK)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload vrf_pk: %w", err)
	}
	dhPK, err := params.UnmarshalDHPublic(wire.Metadata.DHPK)
	if err != nil {
		return Payload{}, fmt.Errorf("decode payload dh_pk: %w", err)
	}

	return Payload{
		Version:   wire.Version,
		Timestamp: wire.Timestamp,
		Nonce:     wire.Nonce,
		Metadata: Metadata{
			Params: params.PublicParams{
				SigPK:     sigPK,
				VRFPK:     vrfPK,
				DHPK:      dhPK,
				NonceSize: wire.Metadata.NonceSize,
			},
			IdentityInfo: wire.Metadata.IdentityInfo,
		},
		MTRHash:  wire.MTRHash,
		PrevHash: wire.PrevHash,
	}, nil
}
