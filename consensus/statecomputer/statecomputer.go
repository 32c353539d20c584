// Package statecomputer declares the capability interface for the external
// state computer: the component that executes committed blocks and returns
// a new ledger state. Execution itself is out of scope for this module.
package statecomputer

import (
	"context"

	"github.com/strataledger/consensus/consensus/types"
)

// StateComputer is shared by reference across processors and is expected
// to be internally thread-safe.
type StateComputer interface {
	// Compute executes a proposed block against its parent's resulting
	// state, without committing it.
	Compute(ctx context.Context, block types.Block, parentRoot [32]byte) ([32]byte, error)
	// CommitBlocks finalizes a run of blocks certified by ledgerInfo.
	CommitBlocks(ctx context.Context, blocks []types.Block, ledgerInfo types.LedgerInfo) error
	// SyncTo drives the computer to catch up to ledgerInfo during an epoch
	// transition. The resulting on-chain configuration, if any, is
	// delivered asynchronously through the reconfiguration channel — this
	// call does not return it directly.
	SyncTo(ctx context.Context, ledgerInfo types.LedgerInfo) error
}
