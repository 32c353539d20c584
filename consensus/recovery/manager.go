// Package recovery implements the Recovery Manager (spec §4.3): the
// transient processor a replica runs when local storage could not
// reconstruct a usable block DAG. It accepts only proposals and votes,
// walking them until a quorum cert is formed, and then hands the Epoch
// Manager a fresh RecoveryData so it can promote the session to a Round
// Manager in place.
package recovery

import (
	"fmt"
	"sync"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/strataledger/consensus/consensus/types"
)

// Manager is single-use: once it returns a RecoveryData it is discarded
// by the Epoch Manager in favor of a Round Manager for the same epoch.
type Manager struct {
	mu sync.Mutex

	epochState  types.EpochState
	commitRound types.Round

	blocks map[[32]byte]types.Block

	power    map[[32]byte]uint64
	votedBy  map[[32]byte]map[types.Author]struct{}

	log gethlog.Logger
}

// New constructs a Manager for the given epoch, seeded with the last
// committed round storage reported (LedgerRecoveryData.CommitRound).
func New(epochState types.EpochState, commitRound types.Round) *Manager {
	return &Manager{
		epochState:  epochState,
		commitRound: commitRound,
		blocks:      make(map[[32]byte]types.Block),
		power:       make(map[[32]byte]uint64),
		votedBy:     make(map[[32]byte]map[types.Author]struct{}),
		log:         gethlog.Root().New("epoch", epochState.Epoch, "component", "recovery"),
	}
}

// EpochState returns the epoch this manager is recovering within.
func (m *Manager) EpochState() types.EpochState {
	return m.epochState
}

// ProcessProposalMsg records a proposed block so a later vote referencing
// it can be used to reconstruct the DAG. A proposal alone never yields a
// quorum cert, so this always returns ok=false.
func (m *Manager) ProcessProposalMsg(p types.ProposalMsg) (types.RecoveryData, bool, error) {
	if p.Round <= m.commitRound {
		return types.RecoveryData{}, false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[p.Block.Hash] = p.Block
	return types.RecoveryData{}, false, nil
}

// ProcessVote aggregates v toward a quorum cert for its block. Once
// voting power for that block crosses the epoch's quorum threshold, the
// manager has enough evidence to hand back a RecoveryData rooted at that
// block and reports ok=true; the caller must not reuse this Manager
// afterward.
func (m *Manager) ProcessVote(v types.VoteMsg) (types.RecoveryData, bool, error) {
	verifier := m.epochState.Verifier
	if !verifier.Contains(v.Vote.Author) {
		return types.RecoveryData{}, false, types.NewError(types.KindInvalidMessage, fmt.Sprintf("vote from non-member %s", v.Vote.Author))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	block, haveBlock := m.blocks[v.Vote.BlockHash]
	seen := m.votedBy[v.Vote.BlockHash]
	if seen == nil {
		seen = make(map[types.Author]struct{})
		m.votedBy[v.Vote.BlockHash] = seen
	}
	if _, dup := seen[v.Vote.Author]; dup {
		return types.RecoveryData{}, false, nil
	}
	seen[v.Vote.Author] = struct{}{}
	m.power[v.Vote.BlockHash] += verifier.VotingPower(v.Vote.Author)

	if m.power[v.Vote.BlockHash] < verifier.QuorumVotingPower() {
		return types.RecoveryData{}, false, nil
	}
	if !haveBlock {
		// Quorum formed for a block whose proposal we never saw: nothing to
		// root the DAG at yet. Wait for the proposal or a higher vote.
		return types.RecoveryData{}, false, nil
	}

	qc := types.QuorumCert{BlockHash: block.Hash, Round: block.Round, ParentHash: block.ParentHash}
	data := types.RecoveryData{
		RootBlock:      block,
		RootQC:         qc,
		TimedOutRounds: make(map[types.Round]struct{}),
	}
	m.log.Info("recovered block DAG from peer votes", "root_round", block.Round)
	return data, true, nil
}

// UnexpectedEvent is returned for any verified event this manager does
// not handle (anything other than a proposal or a vote), mirroring the
// source's "unexpected verified event during startup" failure.
func UnexpectedEvent(kind string) error {
	return types.NewError(types.KindUnexpectedMessage, fmt.Sprintf("unexpected event during startup recovery: %s", kind))
}
