// Package proposal implements the Proposal Generator (spec §2): builds a
// block extending a given parent and pulls a payload from the transaction
// manager up to the configured size bound. The payload only enters the
// block's hash; Block has no field that carries the payload bytes.
package proposal

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/strataledger/consensus/consensus/txmanager"
	"github.com/strataledger/consensus/consensus/types"
)

// Generator builds proposals for one author within one epoch.
type Generator struct {
	author       types.Author
	txns         txmanager.TxnManager
	maxBlockSize uint64
}

// New constructs a Generator. txns is the (per-processor) cloned
// transaction manager handle; maxBlockSize bounds the payload pulled per
// proposal.
func New(author types.Author, txns txmanager.TxnManager, maxBlockSize uint64) *Generator {
	return &Generator{author: author, txns: txns, maxBlockSize: maxBlockSize}
}

// Generate builds a block extending parent at round, excluding the hashes
// of blocks already in flight between parent and the new block (so the
// same transaction isn't proposed twice on one fork).
func (g *Generator) Generate(ctx context.Context, parent types.Block, round types.Round, exclude [][32]byte) (types.Block, error) {
	payload, err := g.txns.PullPayload(ctx, g.maxBlockSize, exclude)
	if err != nil {
		return types.Block{}, err
	}
	block := types.Block{
		ParentHash: parent.Hash,
		Round:      round,
		Author:     g.author,
	}
	block.Hash = hashBlock(block, payload)
	return block, nil
}

// hashBlock derives a content hash for a block. The real payload
// encoding and execution are owned by the state computer and transaction
// manager respectively; this is only the identity the block DAG and
// quorum certs key off of.
func hashBlock(b types.Block, payload txmanager.Payload) [32]byte {
	h := sha256.New()
	h.Write(b.ParentHash[:])
	var roundBuf [8]byte
	binary.BigEndian.PutUint64(roundBuf[:], b.Round)
	h.Write(roundBuf[:])
	h.Write(b.Author[:])
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
