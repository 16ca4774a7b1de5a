package chain

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/iliyamo/ticket-ledger/internal/model"
)

// Block wraps one committed transaction.  Hash covers every other field,
// including PrevHash, so rewriting any block breaks every later link.
type Block struct {
	Height    uint64            `cbor:"1,keyasint"`
	PrevHash  []byte            `cbor:"2,keyasint"`
	Timestamp int64             `cbor:"3,keyasint"`
	Tx        model.Transaction `cbor:"4,keyasint"`
	Hash      []byte            `cbor:"5,keyasint"`
}

// header is the hashed part of a block.
type header struct {
	Height    uint64            `cbor:"1,keyasint"`
	PrevHash  []byte            `cbor:"2,keyasint"`
	Timestamp int64             `cbor:"3,keyasint"`
	Tx        model.Transaction `cbor:"4,keyasint"`
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// NewBlock builds and hashes the block that follows prevHash.
func NewBlock(height uint64, prevHash []byte, tx model.Transaction) (*Block, error) {
	b := &Block{
		Height:    height,
		PrevHash:  prevHash,
		Timestamp: tx.At,
		Tx:        tx,
	}
	sum, err := b.DeriveHash()
	if err != nil {
		return nil, err
	}
	b.Hash = sum
	return b, nil
}

// DeriveHash computes the BLAKE3-256 digest of the block header.
func (b *Block) DeriveHash() ([]byte, error) {
	enc, err := encMode.Marshal(header{
		Height:    b.Height,
		PrevHash:  b.PrevHash,
		Timestamp: b.Timestamp,
		Tx:        b.Tx,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: encode header: %w", err)
	}
	sum := blake3.Sum256(enc)
	return sum[:], nil
}

// Validate checks the block's own hash.
func (b *Block) Validate() bool {
	sum, err := b.DeriveHash()
	if err != nil {
		return false
	}
	return bytes.Equal(sum, b.Hash)
}

// Serialize encodes the block for storage.
func (b *Block) Serialize() ([]byte, error) {
	return encMode.Marshal(b)
}

// Deserialize decodes a stored block.
func Deserialize(data []byte) (*Block, error) {
	var b Block
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("chain: decode block: %w", err)
	}
	return &b, nil
}
