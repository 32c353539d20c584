// Package epoch implements the Epoch Manager (spec §4.1): the top-level
// actor that selects the active processor (Recovery or Normal) for the
// current epoch, routes inbound events to it, and drives epoch
// transitions.
package epoch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	gethlog "github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/strataledger/consensus/config"
	"github.com/strataledger/consensus/consensus/election"
	"github.com/strataledger/consensus/consensus/network"
	"github.com/strataledger/consensus/consensus/proposal"
	"github.com/strataledger/consensus/consensus/recovery"
	"github.com/strataledger/consensus/consensus/round"
	"github.com/strataledger/consensus/consensus/roundstate"
	"github.com/strataledger/consensus/consensus/safety"
	"github.com/strataledger/consensus/consensus/statecomputer"
	"github.com/strataledger/consensus/consensus/storage"
	"github.com/strataledger/consensus/consensus/txmanager"
	"github.com/strataledger/consensus/consensus/types"
	"github.com/strataledger/consensus/metrics"
)

// ReconfigEvent carries a fresh on-chain validator set for a new epoch,
// delivered asynchronously once the state computer's SyncTo call (driven
// from start_new_epoch) lands a reconfiguration.
type ReconfigEvent struct {
	Epoch      types.Epoch
	Validators []types.ValidatorInfo
}

// SafetyFactory builds a fresh safety-rules client for a newly started
// Normal processor. The previous client, if any, must already have been
// released (the Manager enforces this by dropping its reference before
// calling the factory again).
type SafetyFactory func() safety.Client

// Config bundles the Manager's fixed collaborators: everything that is
// shared across every epoch the Manager will ever run.
type Config struct {
	Author        types.Author
	Consensus     config.Consensus
	Sender        network.Sender
	Storage       storage.Storage
	Computer      statecomputer.StateComputer
	Txns          txmanager.TxnManager
	SafetyFactory SafetyFactory
	Clock         mclock.Clock
	Log           gethlog.Logger
}

// processor is the Manager's tagged union over {Normal, Recovery, None}.
type processor struct {
	normal   *round.Manager
	recovery *recovery.Manager
}

func (p processor) isNone() bool     { return p.normal == nil && p.recovery == nil }
func (p processor) isNormal() bool   { return p.normal != nil }
func (p processor) isRecovery() bool { return p.recovery != nil }

// Manager is the top-level actor. All of its processor-mutating methods
// are intended to run on a single goroutine (Start's loop, or a test
// calling them directly) — it holds no internal lock, matching the
// single-owner actor model of spec §5.
type Manager struct {
	author    types.Author
	cfg       config.Consensus
	sender    network.Sender
	storage   storage.Storage
	computer  statecomputer.StateComputer
	txns      txmanager.TxnManager
	safetyNew SafetyFactory
	clock     mclock.Clock

	timeoutCh chan types.Round

	proc       processor
	epochState types.EpochState

	// knownMessages dedups recently seen Proposal/Vote messages the same
	// way the teacher's istanbul backend dedups gossiped consensus
	// messages, so a message re-delivered by more than one peer is only
	// ever dispatched once.
	knownMessages *lru.ARCCache

	log gethlog.Logger
}

const knownMessagesSize = 1024

// New constructs a Manager. It is not started until StartProcessor is
// called with the first epoch's validator set.
func New(cfg Config) *Manager {
	l := cfg.Log
	if l == nil {
		l = gethlog.Root()
	}
	known, _ := lru.NewARC(knownMessagesSize)
	return &Manager{
		author:        cfg.Author,
		cfg:           cfg.Consensus,
		sender:        cfg.Sender,
		storage:       cfg.Storage,
		computer:      cfg.Computer,
		txns:          cfg.Txns,
		safetyNew:     cfg.SafetyFactory,
		clock:         cfg.Clock,
		timeoutCh:     make(chan types.Round, 16),
		knownMessages: known,
		log:           l,
	}
}

// messageDigest identifies a Proposal or Vote for dedup purposes: the
// fields that make two gossiped copies of the same event equal.
func messageDigest(msg network.Message) ([32]byte, bool) {
	h := sha256.New()
	switch msg.Kind {
	case types.KindProposal:
		h.Write([]byte{byte(types.KindProposal)})
		h.Write(msg.Proposal.Block.Hash[:])
	case types.KindVote:
		h.Write([]byte{byte(types.KindVote)})
		h.Write(msg.Vote.Vote.Author[:])
		h.Write(msg.Vote.Vote.BlockHash[:])
	default:
		return [32]byte{}, false
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, true
}

// Epoch returns the epoch of the currently active processor. ok is false
// before the first StartProcessor call.
func (m *Manager) Epoch() (types.Epoch, bool) {
	if m.proc.isNone() {
		return 0, false
	}
	return m.epochState.Epoch, true
}

func (m *Manager) createProposerElection(epochState types.EpochState) election.ProposerElection {
	proposers := epochState.Verifier.OrderedAuthors()
	switch m.cfg.ProposerType {
	case "fixed":
		return election.NewFixed(proposers, m.cfg.ContiguousRounds)
	case "leader_reputation":
		heuristic := election.ActiveInactiveHeuristic{ActiveWeight: m.cfg.ActiveWeight, InactiveWeight: m.cfg.InactiveWeight}
		return election.NewLeaderReputation(proposers, m.cfg.ReputationWindow, heuristic)
	default:
		return election.NewRotating(proposers, m.cfg.ContiguousRounds)
	}
}

// StartProcessor consults storage once and installs either a Round
// Manager (RecoveryData recoverable) or a Recovery Manager
// (LedgerRecoveryData only) for epochState. Any previously active
// processor, and its safety-rules client, is released first.
func (m *Manager) StartProcessor(ctx context.Context, epochState types.EpochState) error {
	m.proc = processor{}

	startup, err := m.storage.Start()
	if err != nil {
		return types.WrapError(types.KindStorageUnavailable, "storage.Start failed", err)
	}

	m.epochState = epochState
	metrics.Epoch.Update(int64(epochState.Epoch))
	metrics.CurrentEpochValidators.Update(int64(epochState.Verifier.Len()))
	metrics.CurrentEpochQuorumSize.Update(int64(epochState.Verifier.QuorumVotingPower()))

	if startup.IsRecoverable() {
		return m.startRoundManager(ctx, *startup.Recovery, epochState)
	}
	m.startRecoveryManager(epochState, startup.LedgerRecovery.CommitRound)
	return nil
}

func (m *Manager) startRoundManager(ctx context.Context, data types.RecoveryData, epochState types.EpochState) error {
	safetyClient := m.safetyNew()
	consensusState, err := safetyClient.ConsensusState()
	if err != nil {
		return types.WrapError(types.KindSafetyViolation, "unable to retrieve consensus state from safety rules", err)
	}
	proof, err := m.storage.RetrieveEpochChangeProof(consensusState.WaypointVersion)
	if err != nil {
		return types.WrapError(types.KindStorageUnavailable, "unable to retrieve waypoint state from storage", err)
	}
	if err := safetyClient.Initialize(proof); err != nil {
		return types.WrapError(types.KindSafetyViolation, "unable to initialize safety rules", err)
	}

	tree := round.NewMemTree(data.RootBlock, data.RootQC, data.PendingBlocks, data.PendingQCs)
	rs := roundstate.New(m.clock, m.cfg.RoundInitialTimeout(), m.timeoutCh)
	gen := proposal.New(m.author, m.txns.Clone(), m.cfg.MaxBlockSize)
	el := m.createProposerElection(epochState)

	mgr := round.New(round.Config{
		Author:     m.author,
		EpochState: epochState,
		Tree:       tree,
		RoundState: rs,
		Election:   el,
		Generator:  gen,
		Safety:     safetyClient,
		Sender:     m.sender,
		Txns:       m.txns.Clone(),
		Storage:    m.storage,
		Computer:   m.computer,
		Log:        m.log,
	})
	if err := mgr.Start(data.LastVote); err != nil {
		return err
	}
	m.proc = processor{normal: mgr}
	m.log.Info("round manager started", "epoch", epochState.Epoch, "root_round", data.RootRound())
	return nil
}

func (m *Manager) startRecoveryManager(epochState types.EpochState, commitRound types.Round) {
	m.proc = processor{recovery: recovery.New(epochState, commitRound)}
	m.log.Info("recovery manager started", "epoch", epochState.Epoch)
}

// ProcessMessage is the epoch-gating entry point for inbound consensus
// messages (spec §4.1's dispatch table).
func (m *Manager) ProcessMessage(ctx context.Context, peer types.Author, msg network.Message) error {
	switch msg.Kind {
	case types.KindProposal, types.KindVote, types.KindSyncInfo:
		digest, dedupable := messageDigest(msg)
		if dedupable {
			if _, seen := m.knownMessages.Get(digest); seen {
				return nil
			}
		}
		msgEpoch, _ := msg.Epoch()
		if msgEpoch != m.epochState.Epoch {
			return m.processDifferentEpoch(ctx, msgEpoch, peer)
		}
		if err := m.verifySignature(peer, msg); err != nil {
			return err
		}
		// Only a verified message is remembered, so a forged copy cannot
		// shadow the genuine one.
		if dedupable {
			m.knownMessages.Add(digest, true)
		}
		return m.processEvent(ctx, peer, msg)
	case types.KindEpochChangeProof:
		msgEpoch, ok := msg.Epoch()
		if !ok {
			return types.NewError(types.KindInvalidMessage, "epoch change proof carries no ledger infos")
		}
		if msgEpoch == m.epochState.Epoch {
			return m.startNewEpoch(ctx, msg.EpochChangeProof.Proof)
		}
		return m.processDifferentEpoch(ctx, msgEpoch, peer)
	case types.KindEpochRetrievalRequest:
		req := msg.EpochRetrievalRequest
		if req.EndEpoch > m.epochState.Epoch {
			return types.NewError(types.KindInvalidRequest, fmt.Sprintf("epoch retrieval request end %d beyond local epoch %d", req.EndEpoch, m.epochState.Epoch))
		}
		return m.processEpochRetrieval(*req, peer)
	default:
		return types.NewError(types.KindUnexpectedMessage, fmt.Sprintf("unexpected message kind %s", msg.Kind))
	}
}

// verifySignature checks a same-epoch Proposal, Vote or SyncInfo event
// against epoch_state.verifier before it reaches the active processor
// (spec §4.1's dispatch table). A forged event never reaches processEvent.
func (m *Manager) verifySignature(peer types.Author, msg network.Message) error {
	var (
		author types.Author
		digest [32]byte
		sig    []byte
	)
	switch msg.Kind {
	case types.KindProposal:
		author = msg.Proposal.Block.Author
		digest = types.ProposalDigest(*msg.Proposal)
		sig = msg.Proposal.Signature
	case types.KindVote:
		author = msg.Vote.Vote.Author
		digest = types.VoteDigest(msg.Vote.Epoch, msg.Vote.Vote)
		sig = msg.Vote.Vote.Signature
	case types.KindSyncInfo:
		author = peer
		digest = types.SyncInfoDigest(*msg.SyncInfo)
		sig = msg.SyncInfo.Signature
	default:
		return nil
	}
	if err := m.epochState.Verifier.VerifySignature(author, digest[:], sig); err != nil {
		return types.WrapError(types.KindInvalidMessage, fmt.Sprintf("%s signature verification failed", msg.Kind), err)
	}
	return nil
}

func (m *Manager) processEpochRetrieval(req types.EpochRetrievalRequest, peer types.Author) error {
	proof, err := m.storage.GetEpochChangeLedgerInfos(req.StartEpoch, req.EndEpoch)
	if err != nil {
		return types.WrapError(types.KindStorageUnavailable, "failed to get epoch proof", err)
	}
	return m.sender.SendTo(peer, network.Message{
		Kind:             types.KindEpochChangeProof,
		EpochChangeProof: &types.EpochChangeProofMsg{Proof: proof},
	})
}

// processDifferentEpoch implements S4/S5: help peers behind us with a
// proof, ask peers ahead of us for one.
func (m *Manager) processDifferentEpoch(ctx context.Context, differentEpoch types.Epoch, peer types.Author) error {
	switch {
	case differentEpoch < m.epochState.Epoch:
		return m.processEpochRetrieval(types.EpochRetrievalRequest{StartEpoch: differentEpoch, EndEpoch: m.epochState.Epoch}, peer)
	case differentEpoch > m.epochState.Epoch:
		return m.sender.SendTo(peer, network.Message{
			Kind:                  types.KindEpochRetrievalRequest,
			EpochRetrievalRequest: &types.EpochRetrievalRequest{StartEpoch: m.epochState.Epoch, EndEpoch: differentEpoch},
		})
	default:
		return types.NewError(types.KindUnexpectedMessage, "processDifferentEpoch called with the current epoch")
	}
}

// startNewEpoch verifies an EpochChangeProof and drives the state
// computer to catch up; the resulting reconfiguration (new validator
// set) arrives later through ReconfigEvent, not as this call's result.
func (m *Manager) startNewEpoch(ctx context.Context, proof types.EpochChangeProof) error {
	ledgerInfo, err := proof.Verify(m.epochState)
	if err != nil {
		return types.WrapError(types.KindInvalidMessage, "invalid epoch change proof", err)
	}
	if err := m.computer.SyncTo(ctx, ledgerInfo); err != nil {
		return types.WrapError(types.KindTransport, fmt.Sprintf("state sync to new epoch %d failed", ledgerInfo.Epoch+1), err)
	}
	return nil
}

// processEvent dispatches a same-epoch event to whichever processor is
// active, promoting Recovery to Normal in place on its first success
// (S6).
func (m *Manager) processEvent(ctx context.Context, peer types.Author, msg network.Message) error {
	switch {
	case m.proc.isRecovery():
		var (
			data types.RecoveryData
			ok   bool
			err  error
		)
		switch msg.Kind {
		case types.KindProposal:
			data, ok, err = m.proc.recovery.ProcessProposalMsg(*msg.Proposal)
		case types.KindVote:
			data, ok, err = m.proc.recovery.ProcessVote(*msg.Vote)
		default:
			return recovery.UnexpectedEvent(msg.Kind.String())
		}
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		epochState := m.proc.recovery.EpochState()
		m.log.Info("recovered from sync processor")
		return m.startRoundManager(ctx, data, epochState)

	case m.proc.isNormal():
		switch msg.Kind {
		case types.KindProposal:
			return m.proc.normal.ProcessProposalMsg(ctx, *msg.Proposal)
		case types.KindVote:
			return m.proc.normal.ProcessVote(ctx, *msg.Vote)
		case types.KindSyncInfo:
			return m.proc.normal.ProcessSyncInfoMsg(ctx, *msg.SyncInfo, peer)
		default:
			return types.NewError(types.KindUnexpectedMessage, fmt.Sprintf("unexpected message kind %s for normal processor", msg.Kind))
		}

	default:
		return types.NewError(types.KindNotStarted, "epoch manager not started yet")
	}
}

// ProcessBlockRetrieval serves a block walk request; only the Normal
// processor can answer one.
func (m *Manager) ProcessBlockRetrieval(req network.IncomingBlockRetrievalRequest) error {
	if !m.proc.isNormal() {
		return types.NewError(types.KindNotStarted, "round manager not started yet")
	}
	resp := m.proc.normal.ProcessBlockRetrieval(req.Request)
	req.Response <- resp
	return nil
}

// ProcessLocalTimeout delivers a fired Round State deadline to the Normal
// processor. Per §9's resolved open question, a timeout while Recovery is
// active or before any processor starts is reported as NotStarted rather
// than treated as statically unreachable.
func (m *Manager) ProcessLocalTimeout(ctx context.Context, r types.Round) error {
	if !m.proc.isNormal() {
		return types.NewError(types.KindNotStarted, "round manager not started yet")
	}
	return m.proc.normal.ProcessLocalTimeout(ctx, r)
}

// Start runs the Epoch Manager's main event loop: it consumes the first
// reconfiguration to bootstrap, then selects over reconfiguration,
// inbound consensus messages, block retrieval requests, and local
// timeouts indefinitely. Idle/busy durations are recorded for every
// iteration (S7); no error from a handler stops the loop.
func (m *Manager) Start(ctx context.Context, reconfig <-chan ReconfigEvent, receivers network.Receivers) error {
	first, ok := <-reconfig
	if !ok {
		return types.NewError(types.KindStorageUnavailable, "reconfiguration stream closed before the first epoch arrived")
	}
	epochState := types.EpochState{Epoch: first.Epoch, Verifier: types.NewValidatorVerifier(first.Validators)}
	if err := m.StartProcessor(ctx, epochState); err != nil {
		return types.WrapError(types.KindStorageUnavailable, "initial StartProcessor failed", err)
	}

	for {
		readyAt := time.Now()
		var (
			idle time.Duration
			err  error
		)
		select {
		case <-ctx.Done():
			return nil
		case ev, chOK := <-reconfig:
			idle = time.Since(readyAt)
			if !chOK {
				return nil
			}
			next := types.EpochState{Epoch: ev.Epoch, Verifier: types.NewValidatorVerifier(ev.Validators)}
			err = m.StartProcessor(ctx, next)
		case in := <-receivers.ConsensusMessages:
			idle = time.Since(readyAt)
			err = m.ProcessMessage(ctx, in.Peer, in.Msg)
		case br := <-receivers.BlockRetrieval:
			idle = time.Since(readyAt)
			err = m.ProcessBlockRetrieval(br)
		case r := <-m.timeoutCh:
			idle = time.Since(readyAt)
			err = m.ProcessLocalTimeout(ctx, r)
		}
		if err != nil {
			m.log.Warn("event processing error", "err", err, "kind", types.KindOf(err))
		}
		if m.proc.isNormal() {
			m.log.Debug(m.proc.normal.RoundState().String())
		}
		metrics.ObserveLoopIteration(readyAt, time.Now(), idle)
	}
}
