package round

import (
	"sync"

	"github.com/strataledger/consensus/consensus/types"
)

// BlockTree is the in-memory block DAG capability the Round and Recovery
// managers mutate. The durable backing store and pruning policy live in
// the persistent liveness storage collaborator (out of scope here); this
// is only the live working set built from RecoveryData at startup.
type BlockTree interface {
	InsertBlock(block types.Block, parentQC types.QuorumCert) error
	Block(hash [32]byte) (types.Block, bool)
	HighestQuorumCert() types.QuorumCert
	// RecordQuorumCert attaches a freshly formed QC to its block and, when
	// it completes a 2-chain over an already-certified parent, returns that
	// parent as the committed block.
	RecordQuorumCert(qc types.QuorumCert) (committed *types.Block, ok bool)
	Walk(from [32]byte, count uint64) []types.Block
}

type treeNode struct {
	block  types.Block
	hasQC  bool
	qc     types.QuorumCert
}

// MemTree is the default BlockTree: a plain map keyed by block hash,
// adequate for the single-owner actor model described in spec §5 (no
// concurrent mutation is expected, the mutex only guards against the
// block-retrieval path being served from a different goroutine).
type MemTree struct {
	mu         sync.RWMutex
	nodes      map[[32]byte]*treeNode
	highestQC  types.QuorumCert
}

// NewMemTree seeds a MemTree from RecoveryData: the root block becomes the
// tree's base, already marked certified.
func NewMemTree(root types.Block, rootQC types.QuorumCert, pending []types.Block, pendingQCs []types.QuorumCert) *MemTree {
	t := &MemTree{nodes: make(map[[32]byte]*treeNode)}
	t.nodes[root.Hash] = &treeNode{block: root, hasQC: true, qc: rootQC}
	t.highestQC = rootQC
	for _, b := range pending {
		t.nodes[b.Hash] = &treeNode{block: b}
	}
	for _, qc := range pendingQCs {
		if n, ok := t.nodes[qc.BlockHash]; ok {
			n.hasQC = true
			n.qc = qc
			if qc.Round > t.highestQC.Round {
				t.highestQC = qc
			}
		}
	}
	return t
}

func (t *MemTree) InsertBlock(block types.Block, parentQC types.QuorumCert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[block.ParentHash]; !ok {
		return types.NewError(types.KindUnexpectedMessage, "block extends unknown parent")
	}
	if _, exists := t.nodes[block.Hash]; exists {
		return nil // idempotent re-insertion of the same block
	}
	t.nodes[block.Hash] = &treeNode{block: block}
	return nil
}

func (t *MemTree) Block(hash [32]byte) (types.Block, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return types.Block{}, false
	}
	return n.block, true
}

func (t *MemTree) HighestQuorumCert() types.QuorumCert {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.highestQC
}

func (t *MemTree) RecordQuorumCert(qc types.QuorumCert) (*types.Block, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[qc.BlockHash]
	if !ok {
		return nil, false
	}
	node.hasQC = true
	node.qc = qc
	if qc.Round > t.highestQC.Round {
		t.highestQC = qc
	}
	parent, ok := t.nodes[node.block.ParentHash]
	if !ok || !parent.hasQC {
		return nil, false // 2-chain rule not yet satisfied
	}
	committed := parent.block
	return &committed, true
}

func (t *MemTree) Walk(from [32]byte, count uint64) []types.Block {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []types.Block
	cur, ok := t.nodes[from]
	for ok && uint64(len(out)) < count {
		out = append(out, cur.block)
		cur, ok = t.nodes[cur.block.ParentHash]
	}
	return out
}
