package hashchain

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Block is a payload plus its signature. Aux holds the signature bytes; it
// is produced after ContentHash so it can never be part of the hash it
// signs.
type Block struct {
	Body []byte
	Aux  []byte

	// ID is a debug/tracing identifier attached when a block is built; it
	// is never part of the hashed or signed content.
	ID string
}

type blockWire struct {
	Body []byte `json:"body"`
	Aux  []byte `json:"aux"`
}

// NewBlock wraps a serialized payload as an unsigned block body, assigning
// it a fresh debug ID.
func NewBlock(body []byte) Block {
	return Block{Body: body, ID: uuid.NewString()}
}

// ContentHash is the hash signed by the owner and re-derived on
// verification: it covers Body only, with Aux always treated as the
// canonical null value. A block's signature therefore never participates
// in the hash it is a signature over.
func (b Block) ContentHash() [32]byte {
	h := sha256.New()
	h.Write(b.Body)
	h.Write([]byte("aux:null"))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Serialize encodes the block (including Aux) for storage. This is the
// representation hashed by the object store to produce the block's address
// in the chain.
func (b Block) Serialize() ([]byte, error) {
	data, err := json.Marshal(blockWire{Body: b.Body, Aux: b.Aux})
	if err != nil {
		return nil, fmt.Errorf("serialize block: %w", err)
	}
	return data, nil
}

// DeserializeBlock parses a block previously produced by Serialize.
func DeserializeBlock(data []byte) (Block, error) {
	var wire blockWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Block{}, fmt.Errorf("deserialize block: %w", err)
	}
	return Block{Body: wire.Body, Aux: wire.Aux}, nil
}

// Payload decodes the block's body as a Payload.
func (b Block) Payload() (Payload, error) {
	return PayloadFromExport(b.Body)
}
