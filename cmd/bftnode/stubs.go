package main

import (
	"context"
	"sync"

	"github.com/strataledger/consensus/consensus/network"
	"github.com/strataledger/consensus/consensus/safety"
	"github.com/strataledger/consensus/consensus/statecomputer"
	"github.com/strataledger/consensus/consensus/storage"
	"github.com/strataledger/consensus/consensus/txmanager"
	"github.com/strataledger/consensus/consensus/types"
	"github.com/strataledger/consensus/discovery"
)

// loopbackDiscoverySender is loopbackSender's counterpart for the Gossip
// Discovery actor's own outbound path, which carries DiscoveryMsg rather
// than network.Message.
type loopbackDiscoverySender struct{}

func newLoopbackDiscoverySender() loopbackDiscoverySender { return loopbackDiscoverySender{} }

func (loopbackDiscoverySender) SendTo(peer types.Author, msg discovery.DiscoveryMsg) error {
	return nil
}

var _ discovery.Sender = loopbackDiscoverySender{}

// loopbackSender stands in for the framed network transport (out of scope
// for this module, per the Network Sender/Receiver collaborator summary):
// it counts each send and drops the message instead of delivering it to a
// peer process. A real deployment replaces this with a Sender backed by
// devp2p or libp2p framing plus the RLP codec already used for the wire
// envelope.
type loopbackSender struct {
	mu   sync.Mutex
	sent int
}

func newLoopbackSender() *loopbackSender { return &loopbackSender{} }

func (s *loopbackSender) SendTo(peer types.Author, msg network.Message) error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *loopbackSender) Broadcast(recipients []types.Author, msg network.Message) []error {
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return make([]error, len(recipients))
}

// memStorage is an in-memory stand-in for the persistent liveness store:
// every restart starts from LedgerRecoveryData at round 0, forcing the
// Recovery Manager path, since nothing survives process restart. A real
// deployment backs this with the same append-only store the teacher's
// rawdb package models for chain data.
type memStorage struct {
	mu    sync.Mutex
	votes []types.Vote
}

func newMemStorage() *memStorage { return &memStorage{} }

func (s *memStorage) Start() (storage.StartupData, error) {
	return storage.StartupData{LedgerRecovery: &types.LedgerRecoveryData{CommitRound: 0}}, nil
}

func (s *memStorage) GetEpochChangeLedgerInfos(start, end types.Epoch) (types.EpochChangeProof, error) {
	return types.EpochChangeProof{}, nil
}

func (s *memStorage) RetrieveEpochChangeProof(waypointVersion uint64) (types.EpochChangeProof, error) {
	return types.EpochChangeProof{}, nil
}

func (s *memStorage) SaveVote(vote types.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = append(s.votes, vote)
	return nil
}

// noopComputer stands in for the external state computer: it accepts
// every block without executing anything. A real deployment wires this to
// the chain's own block processor the way the teacher's core.BlockChain
// implements consensus.Engine's verification hooks.
type noopComputer struct{}

func (noopComputer) Compute(ctx context.Context, block types.Block, parentRoot [32]byte) ([32]byte, error) {
	return parentRoot, nil
}
func (noopComputer) CommitBlocks(ctx context.Context, blocks []types.Block, ledgerInfo types.LedgerInfo) error {
	return nil
}
func (noopComputer) SyncTo(ctx context.Context, ledgerInfo types.LedgerInfo) error { return nil }

var _ statecomputer.StateComputer = noopComputer{}

// noopTxns stands in for the transaction manager / mempool: it never has
// payload to offer. A real deployment wires this to the chain's own
// pending-transaction pool.
type noopTxns struct{}

func (noopTxns) PullPayload(ctx context.Context, maxBytes uint64, exclude [][32]byte) (txmanager.Payload, error) {
	return nil, nil
}
func (noopTxns) NotifyCommit(blocks []types.Block) error { return nil }
func (noopTxns) Clone() txmanager.TxnManager             { return noopTxns{} }

var _ txmanager.TxnManager = noopTxns{}

// insecureSafetyClient stands in for the external safety-rules signer: it
// vouches for anything asked of it without enforcing non-equivocation or
// locked-round rules. A real deployment wires this to a signer holding the
// validator's private key behind the same safety-rules boundary the source
// this was distilled from keeps as a separate process.
type insecureSafetyClient struct {
	author types.Author
}

func newInsecureSafetyClient(author types.Author) *insecureSafetyClient {
	return &insecureSafetyClient{author: author}
}

func (c *insecureSafetyClient) ConsensusState() (safety.ConsensusState, error) {
	return safety.ConsensusState{}, nil
}
func (c *insecureSafetyClient) Initialize(proof types.EpochChangeProof) error { return nil }
func (c *insecureSafetyClient) SignProposal(block types.Block, parentQC types.QuorumCert) (types.Vote, error) {
	return types.Vote{Author: c.author, BlockHash: block.Hash, Round: block.Round}, nil
}
func (c *insecureSafetyClient) SignTimeout(round types.Round) ([]byte, error) {
	return []byte("insecure-timeout-signature"), nil
}
func (c *insecureSafetyClient) Sign(digest []byte) ([]byte, error) {
	return []byte("insecure-signature"), nil
}

var _ safety.Client = (*insecureSafetyClient)(nil)
