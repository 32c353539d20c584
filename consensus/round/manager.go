// Package round implements the Round Manager (spec §4.2): the live,
// "happy path" per-round state machine that processes proposals, votes,
// and sync info once the local block DAG is known-good.
package round

import (
	"context"
	"fmt"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/strataledger/consensus/consensus/election"
	"github.com/strataledger/consensus/consensus/network"
	"github.com/strataledger/consensus/consensus/proposal"
	"github.com/strataledger/consensus/consensus/roundstate"
	"github.com/strataledger/consensus/consensus/safety"
	"github.com/strataledger/consensus/consensus/statecomputer"
	"github.com/strataledger/consensus/consensus/storage"
	"github.com/strataledger/consensus/consensus/txmanager"
	"github.com/strataledger/consensus/consensus/types"
	"github.com/strataledger/consensus/metrics"
)

// Manager is the Round Manager: it owns the block tree, round state,
// proposer election and safety client for one epoch's normal operation.
type Manager struct {
	author     types.Author
	epochState types.EpochState

	tree       BlockTree
	roundState *roundstate.RoundState
	election   election.ProposerElection
	generator  *proposal.Generator
	safety     safety.Client
	sender     network.Sender
	txns       txmanager.TxnManager
	storage    storage.Storage
	computer   statecomputer.StateComputer

	aggregator     *voteAggregator
	lastVotedRound types.Round

	log gethlog.Logger
}

// Config bundles the collaborators a Manager needs; it exists so
// construction reads as one call at the epoch package's call site instead
// of a ten-argument constructor.
type Config struct {
	Author     types.Author
	EpochState types.EpochState
	Tree       BlockTree
	RoundState *roundstate.RoundState
	Election   election.ProposerElection
	Generator  *proposal.Generator
	Safety     safety.Client
	Sender     network.Sender
	Txns       txmanager.TxnManager
	Storage    storage.Storage
	Computer   statecomputer.StateComputer
	Log        gethlog.Logger
}

// New constructs a Round Manager from cfg.
func New(cfg Config) *Manager {
	l := cfg.Log
	if l == nil {
		l = gethlog.Root()
	}
	return &Manager{
		author:     cfg.Author,
		epochState: cfg.EpochState,
		tree:       cfg.Tree,
		roundState: cfg.RoundState,
		election:   cfg.Election,
		generator:  cfg.Generator,
		safety:     cfg.Safety,
		sender:     cfg.Sender,
		txns:       cfg.Txns,
		storage:    cfg.Storage,
		computer:   cfg.Computer,
		aggregator: newVoteAggregator(cfg.EpochState.Verifier),
		log:        l.New("epoch", cfg.EpochState.Epoch),
	}
}

// EpochState returns the epoch state this manager was constructed with.
func (m *Manager) EpochState() types.EpochState {
	return m.epochState
}

// RoundState exposes the round timer for the Epoch Manager's debug logging.
func (m *Manager) RoundState() *roundstate.RoundState {
	return m.roundState
}

// Start resends lastVote if the processor is restarting with an
// unconfirmed vote outstanding; otherwise it just waits for proposals at
// the round the block tree's highest QC implies.
func (m *Manager) Start(lastVote *types.Vote) error {
	m.roundState.NewRound(m.tree.HighestQuorumCert().Round + 1)
	if lastVote == nil {
		return nil
	}
	m.lastVotedRound = lastVote.Round
	return m.broadcastVote(*lastVote)
}

// ProcessProposalMsg validates and, if appropriate, votes for a proposed
// block. It requires p.Round to be strictly greater than the last round
// this replica voted in and the proposer to be the expected leader for
// (epoch, round).
func (m *Manager) ProcessProposalMsg(ctx context.Context, p types.ProposalMsg) error {
	if p.Round <= m.lastVotedRound {
		return types.NewError(types.KindUnexpectedMessage, fmt.Sprintf("proposal round %d not after last voted round %d", p.Round, m.lastVotedRound))
	}
	if !m.election.IsValidProposer(p.Block.Author, p.Round) {
		return types.NewError(types.KindInvalidMessage, fmt.Sprintf("author %s is not the expected leader for round %d", p.Block.Author, p.Round))
	}
	if err := m.tree.InsertBlock(p.Block, p.ParentQC); err != nil {
		return err
	}

	vote, err := m.safety.SignProposal(p.Block, p.ParentQC)
	if err != nil {
		return types.WrapError(types.KindSafetyViolation, "safety rules rejected proposal", err)
	}
	vote.Epoch = m.epochState.Epoch
	m.lastVotedRound = p.Round
	if err := m.storage.SaveVote(vote); err != nil {
		m.log.Warn("failed to persist vote", "round", p.Round, "err", err)
	}
	metrics.ProposalsProcessed.Inc(1)
	return m.broadcastVote(vote)
}

func (m *Manager) broadcastVote(vote types.Vote) error {
	msg := network.Message{
		Kind: types.KindVote,
		Vote: &types.VoteMsg{
			Epoch: m.epochState.Epoch,
			Vote:  vote,
			SyncInfo: types.SyncInfo{
				Epoch:     m.epochState.Epoch,
				HighestQC: m.tree.HighestQuorumCert(),
			},
		},
	}
	errs := m.sender.Broadcast(m.epochState.Verifier.OrderedAuthors(), msg)
	for i, err := range errs {
		if err != nil {
			m.log.Warn("vote broadcast failed for one recipient", "idx", i, "err", err)
		}
	}
	return nil
}

// ProcessVote aggregates v toward a quorum cert and, on reaching quorum,
// records it in the block tree, commits any block it finalizes, and
// advances the round.
func (m *Manager) ProcessVote(ctx context.Context, v types.VoteMsg) error {
	if !m.aggregator.AddVote(v.Vote) {
		return nil
	}
	metrics.VotesProcessed.Inc(1)
	qc := types.QuorumCert{
		BlockHash: v.Vote.BlockHash,
		Round:     v.Vote.Round,
	}
	committed, ok := m.tree.RecordQuorumCert(qc)
	if ok && m.computer != nil {
		if err := m.computer.CommitBlocks(ctx, []types.Block{*committed}, qc.LedgerInfo); err != nil {
			m.log.Warn("state computer commit failed", "err", err)
		}
		if err := m.txns.NotifyCommit([]types.Block{*committed}); err != nil {
			m.log.Warn("txn manager commit notification failed", "err", err)
		}
		metrics.BlocksCommitted.Inc(1)
	}
	m.roundState.NewRound(qc.Round + 1)
	return nil
}

// ProcessNewRoundEvent generates and broadcasts a proposal extending the
// block carrying the highest known quorum cert, if and only if this
// replica is the elected proposer for the round the Round State is
// currently timing. It is a no-op otherwise, so callers can invoke it
// unconditionally whenever NewRound fires.
func (m *Manager) ProcessNewRoundEvent(ctx context.Context) error {
	round := m.roundState.CurrentRound()
	if !m.election.IsValidProposer(m.author, round) {
		return nil
	}
	parentQC := m.tree.HighestQuorumCert()
	parent, ok := m.tree.Block(parentQC.BlockHash)
	if !ok {
		return types.NewError(types.KindUnexpectedMessage, "highest quorum cert points at an unknown block")
	}
	block, err := m.generator.Generate(ctx, parent, round, nil)
	if err != nil {
		return types.WrapError(types.KindTransport, "proposal generation failed", err)
	}
	if err := m.tree.InsertBlock(block, parentQC); err != nil {
		return err
	}
	proposalMsg := types.ProposalMsg{
		Epoch:    m.epochState.Epoch,
		Round:    round,
		Block:    block,
		ParentQC: parentQC,
	}
	digest := types.ProposalDigest(proposalMsg)
	sig, err := m.safety.Sign(digest[:])
	if err != nil {
		return types.WrapError(types.KindSafetyViolation, "safety rules rejected proposal signing", err)
	}
	proposalMsg.Signature = sig
	msg := network.Message{Kind: types.KindProposal, Proposal: &proposalMsg}
	errs := m.sender.Broadcast(m.epochState.Verifier.OrderedAuthors(), msg)
	for i, err := range errs {
		if err != nil {
			m.log.Warn("proposal broadcast failed for one recipient", "idx", i, "err", err)
		}
	}
	return nil
}

// ProcessSyncInfoMsg advances the round when si proves a higher certified
// round than this replica has observed; it does not itself fetch blocks,
// it only signals that a gap may exist (block retrieval is driven by the
// caller re-requesting on the next sync info).
func (m *Manager) ProcessSyncInfoMsg(ctx context.Context, si types.SyncInfo, peer types.Author) error {
	if si.HighestCertifiedRound() <= m.roundState.CurrentRound() {
		return nil
	}
	m.roundState.NewRound(si.HighestCertifiedRound() + 1)
	return nil
}

// timeoutSentinel marks a Vote as a timeout vote rather than an
// endorsement of a specific block: spec §6 enumerates Vote as one of the
// wire message kinds and does not add a distinct timeout-message variant,
// so a timeout is carried as a Vote with the zero block hash.
var timeoutSentinel [32]byte

// ProcessLocalTimeout handles a fired Round State deadline: if it is
// stale (the round has already advanced) it is silently discarded,
// otherwise it broadcasts a timeout vote for round.
func (m *Manager) ProcessLocalTimeout(ctx context.Context, round types.Round) error {
	if !m.roundState.ProcessLocalTimeout(round) {
		return nil
	}
	sig, err := m.safety.SignTimeout(round)
	if err != nil {
		return types.WrapError(types.KindSafetyViolation, "safety rules rejected timeout", err)
	}
	vote := types.Vote{
		Author:    m.author,
		BlockHash: timeoutSentinel,
		Round:     round,
		Epoch:     m.epochState.Epoch,
		Signature: sig,
	}
	return m.broadcastVote(vote)
}

// ProcessBlockRetrieval serves a block walk from the local DAG.
func (m *Manager) ProcessBlockRetrieval(req types.BlockRetrievalRequest) types.BlockRetrievalResponse {
	blocks := m.tree.Walk(req.BlockHash, req.NumBlocks)
	status := types.RetrievalSucceeded
	if len(blocks) == 0 {
		status = types.RetrievalIDNotFound
	} else if uint64(len(blocks)) < req.NumBlocks {
		status = types.RetrievalNotEnoughBlocks
	}
	return types.BlockRetrievalResponse{Status: status, Blocks: blocks}
}
