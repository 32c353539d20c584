// Package txmanager declares the capability interface for the transaction
// manager: it pulls pending payload for proposals and is notified of
// commits. It is cloned per processor; clones share queue state.
package txmanager

import (
	"context"

	"github.com/strataledger/consensus/consensus/types"
)

// Payload is an opaque, size-bounded transaction batch. Its internal
// structure (encoding, per-txn validity) is owned by the transaction
// manager and out of scope here.
type Payload []byte

// TxnManager pulls pending payload for the Proposal Generator and learns of
// commits so it can drop included transactions from its queue.
type TxnManager interface {
	// PullPayload returns up to maxBytes of pending payload, excluding
	// anything already included in exclude.
	PullPayload(ctx context.Context, maxBytes uint64, exclude [][32]byte) (Payload, error)
	// NotifyCommit tells the manager that blocks have been committed, so
	// their payload can be evicted from the pending queue.
	NotifyCommit(blocks []types.Block) error
	// Clone returns a handle that shares this manager's queue state, for
	// handing to a freshly started processor.
	Clone() TxnManager
}
