package epoch

import (
	"context"
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/strataledger/consensus/config"
	"github.com/strataledger/consensus/consensus/network"
	"github.com/strataledger/consensus/consensus/safety"
	"github.com/strataledger/consensus/consensus/statecomputer"
	"github.com/strataledger/consensus/consensus/storage"
	"github.com/strataledger/consensus/consensus/txmanager"
	"github.com/strataledger/consensus/consensus/types"
	"github.com/strataledger/consensus/metrics"
)

func metricsBusySnapshot() int64 {
	return metrics.EventLoopBusyDuration.Snapshot().Count()
}

type fakeSafety struct{}

func (fakeSafety) ConsensusState() (safety.ConsensusState, error) { return safety.ConsensusState{}, nil }
func (fakeSafety) Initialize(proof types.EpochChangeProof) error  { return nil }
func (fakeSafety) SignProposal(block types.Block, parentQC types.QuorumCert) (types.Vote, error) {
	return types.Vote{Author: block.Author, BlockHash: block.Hash, Round: block.Round}, nil
}
func (fakeSafety) SignTimeout(round types.Round) ([]byte, error) { return []byte("sig"), nil }
func (fakeSafety) Sign(digest []byte) ([]byte, error)            { return []byte("sig"), nil }

type fakeStorage struct {
	startup storage.StartupData
	proof   types.EpochChangeProof
}

func (f *fakeStorage) Start() (storage.StartupData, error) { return f.startup, nil }
func (f *fakeStorage) GetEpochChangeLedgerInfos(start, end types.Epoch) (types.EpochChangeProof, error) {
	return f.proof, nil
}
func (f *fakeStorage) RetrieveEpochChangeProof(waypointVersion uint64) (types.EpochChangeProof, error) {
	return types.EpochChangeProof{}, nil
}
func (f *fakeStorage) SaveVote(vote types.Vote) error { return nil }

type fakeComputer struct{}

func (fakeComputer) Compute(ctx context.Context, block types.Block, parentRoot [32]byte) ([32]byte, error) {
	return [32]byte{}, nil
}
func (fakeComputer) CommitBlocks(ctx context.Context, blocks []types.Block, ledgerInfo types.LedgerInfo) error {
	return nil
}
func (fakeComputer) SyncTo(ctx context.Context, ledgerInfo types.LedgerInfo) error { return nil }

var _ statecomputer.StateComputer = fakeComputer{}

type fakeTxns struct{}

func (fakeTxns) PullPayload(ctx context.Context, maxBytes uint64, exclude [][32]byte) (txmanager.Payload, error) {
	return nil, nil
}
func (fakeTxns) NotifyCommit(blocks []types.Block) error { return nil }
func (fakeTxns) Clone() txmanager.TxnManager             { return fakeTxns{} }

type fakeSender struct {
	sent []network.Message
	to   []types.Author
}

func (f *fakeSender) SendTo(peer types.Author, msg network.Message) error {
	f.to = append(f.to, peer)
	f.sent = append(f.sent, msg)
	return nil
}
func (f *fakeSender) Broadcast(recipients []types.Author, msg network.Message) []error {
	f.sent = append(f.sent, msg)
	return make([]error, len(recipients))
}

func testAuthor(b byte) types.Author {
	var a types.Author
	a[0] = b
	return a
}

func verifierOf(authors ...types.Author) *types.ValidatorVerifier {
	infos := make([]types.ValidatorInfo, len(authors))
	for i, a := range authors {
		infos[i] = types.ValidatorInfo{Author: a, VotingPower: 1}
	}
	return types.NewValidatorVerifier(infos)
}

// signingValidator is a test validator with real secp256k1 key material,
// for tests that exercise ProcessMessage's signature verification against
// epoch_state.verifier rather than feeding it differently-epoched or
// non-gated message kinds.
type signingValidator struct {
	author types.Author
	priv   *ecdsa.PrivateKey
}

func newSigningValidator(t *testing.T, b byte) signingValidator {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	var a types.Author
	a[0] = b
	return signingValidator{author: a, priv: priv}
}

func (v signingValidator) validatorInfo() types.ValidatorInfo {
	return types.ValidatorInfo{Author: v.author, VotingPower: 1, PublicKey: crypto.FromECDSAPub(&v.priv.PublicKey)}
}

func signedVerifierOf(vs ...signingValidator) *types.ValidatorVerifier {
	infos := make([]types.ValidatorInfo, len(vs))
	for i, v := range vs {
		infos[i] = v.validatorInfo()
	}
	return types.NewValidatorVerifier(infos)
}

func (v signingValidator) signVote(epoch types.Epoch, vote types.Vote) []byte {
	digest := types.VoteDigest(epoch, vote)
	sig, err := crypto.Sign(digest[:], v.priv)
	if err != nil {
		panic(err)
	}
	return sig
}

func (v signingValidator) signProposal(p types.ProposalMsg) []byte {
	digest := types.ProposalDigest(p)
	sig, err := crypto.Sign(digest[:], v.priv)
	if err != nil {
		panic(err)
	}
	return sig
}

func newTestManagerRecoverable(t *testing.T, author types.Author, proposers []types.Author) (*Manager, *fakeSender, *fakeStorage) {
	t.Helper()
	sender := &fakeSender{}
	st := &fakeStorage{startup: storage.StartupData{Recovery: &types.RecoveryData{
		RootBlock:      types.Block{Round: 0},
		RootQC:         types.QuorumCert{Round: 0},
		TimedOutRounds: map[types.Round]struct{}{},
	}}}
	var clock mclock.Simulated
	m := New(Config{
		Author:        author,
		Consensus:     config.Default().Consensus,
		Sender:        sender,
		Storage:       st,
		Computer:      fakeComputer{},
		Txns:          fakeTxns{},
		SafetyFactory: func() safety.Client { return fakeSafety{} },
		Clock:         &clock,
	})
	epochState := types.EpochState{Epoch: 5, Verifier: verifierOf(proposers...)}
	require.NoError(t, m.StartProcessor(context.Background(), epochState))
	require.True(t, m.proc.isNormal())
	return m, sender, st
}

func newTestManagerRecovery(t *testing.T, author types.Author, verifier *types.ValidatorVerifier, commitRound types.Round) (*Manager, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	st := &fakeStorage{startup: storage.StartupData{LedgerRecovery: &types.LedgerRecoveryData{CommitRound: commitRound}}}
	var clock mclock.Simulated
	m := New(Config{
		Author:        author,
		Consensus:     config.Default().Consensus,
		Sender:        sender,
		Storage:       st,
		Computer:      fakeComputer{},
		Txns:          fakeTxns{},
		SafetyFactory: func() safety.Client { return fakeSafety{} },
		Clock:         &clock,
	})
	epochState := types.EpochState{Epoch: 5, Verifier: verifier}
	require.NoError(t, m.StartProcessor(context.Background(), epochState))
	require.True(t, m.proc.isRecovery())
	return m, sender
}

// S4: a peer behind us sends a message tagged with a lower epoch; we reply
// with the EpochChangeProof covering the gap.
func TestProcessMessage_LowerEpochSendsChangeProof(t *testing.T) {
	a0, a1 := testAuthor(1), testAuthor(2)
	m, sender, st := newTestManagerRecoverable(t, a0, []types.Author{a0, a1})
	st.proof = types.EpochChangeProof{LedgerInfos: []types.LedgerInfo{{Epoch: 3}}}

	err := m.ProcessMessage(context.Background(), a1, network.Message{
		Kind:  types.KindVote,
		Vote:  &types.VoteMsg{Epoch: 3, Vote: types.Vote{Author: a1}},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, types.KindEpochChangeProof, sender.sent[0].Kind)
	require.Equal(t, st.proof, sender.sent[0].EpochChangeProof.Proof)
	require.Equal(t, a1, sender.to[0])
}

// S5: a peer ahead of us sends a message tagged with a higher epoch; we ask
// it for the proof covering our gap instead of trying to process the event.
func TestProcessMessage_HigherEpochSendsRetrievalRequest(t *testing.T) {
	a0, a1 := testAuthor(1), testAuthor(2)
	m, sender, _ := newTestManagerRecoverable(t, a0, []types.Author{a0, a1})

	err := m.ProcessMessage(context.Background(), a1, network.Message{
		Kind: types.KindVote,
		Vote: &types.VoteMsg{Epoch: 9, Vote: types.Vote{Author: a1}},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	require.Equal(t, types.KindEpochRetrievalRequest, sender.sent[0].Kind)
	require.Equal(t, types.EpochRetrievalRequest{StartEpoch: 5, EndEpoch: 9}, *sender.sent[0].EpochRetrievalRequest)
	require.Equal(t, a1, sender.to[0])
}

// S6: once the Recovery Manager has accumulated a quorum over a proposal it
// already saw, the Epoch Manager promotes the processor to Normal in place,
// at the same epoch, without a reconfiguration event.
func TestProcessMessage_RecoveryPromotesToNormalOnQuorum(t *testing.T) {
	v0 := newSigningValidator(t, 1)
	v1 := newSigningValidator(t, 2)
	v2 := newSigningValidator(t, 3)
	validators := []signingValidator{v0, v1, v2}
	verifier := signedVerifierOf(validators...)
	m, _ := newTestManagerRecovery(t, v0.author, verifier, 0)

	block := types.Block{Round: 1, Author: v0.author}
	block.Hash = [32]byte{9, 9, 9}

	proposalMsg := types.ProposalMsg{Epoch: 5, Round: 1, Block: block}
	proposalMsg.Signature = v0.signProposal(proposalMsg)

	err := m.ProcessMessage(context.Background(), v0.author, network.Message{
		Kind:     types.KindProposal,
		Proposal: &proposalMsg,
	})
	require.NoError(t, err)
	require.True(t, m.proc.isRecovery())

	for _, validator := range validators {
		vote := types.Vote{Author: validator.author, BlockHash: block.Hash, Round: 1}
		vote.Signature = validator.signVote(5, vote)
		err := m.ProcessMessage(context.Background(), validator.author, network.Message{
			Kind: types.KindVote,
			Vote: &types.VoteMsg{Epoch: 5, Vote: vote},
		})
		require.NoError(t, err)
	}
	require.True(t, m.proc.isNormal())
	require.Equal(t, types.Epoch(5), m.epochState.Epoch)
}

// S7: every loop iteration records idle and busy durations, regardless of
// which channel fired.
func TestStart_RecordsIdleAndBusyDurationPerIteration(t *testing.T) {
	v0 := newSigningValidator(t, 1)
	sender := &fakeSender{}
	st := &fakeStorage{startup: storage.StartupData{Recovery: &types.RecoveryData{
		RootBlock:      types.Block{},
		RootQC:         types.QuorumCert{},
		TimedOutRounds: map[types.Round]struct{}{},
	}}}
	var clock mclock.Simulated
	m := New(Config{
		Author:        v0.author,
		Consensus:     config.Default().Consensus,
		Sender:        sender,
		Storage:       st,
		Computer:      fakeComputer{},
		Txns:          fakeTxns{},
		SafetyFactory: func() safety.Client { return fakeSafety{} },
		Clock:         &clock,
	})

	reconfig := make(chan ReconfigEvent, 1)
	reconfig <- ReconfigEvent{Epoch: 1, Validators: []types.ValidatorInfo{v0.validatorInfo()}}
	receivers := network.Receivers{
		ConsensusMessages: make(chan network.InboundMessage, 1),
		BlockRetrieval:    make(chan network.IncomingBlockRetrievalRequest, 1),
	}

	before := metricsBusySnapshot()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, reconfig, receivers) }()

	vote := types.Vote{Author: v0.author}
	vote.Signature = v0.signVote(1, vote)
	receivers.ConsensusMessages <- network.InboundMessage{Peer: v0.author, Msg: network.Message{
		Kind: types.KindVote,
		Vote: &types.VoteMsg{Epoch: 1, Vote: vote},
	}}
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	require.Greater(t, metricsBusySnapshot(), before)
}

// S8: an EpochRetrievalRequest asking past our local epoch is rejected as
// invalid and nothing is sent back.
func TestProcessMessage_RetrievalRequestBeyondLocalEpochRejected(t *testing.T) {
	a0, a1 := testAuthor(1), testAuthor(2)
	m, sender, _ := newTestManagerRecoverable(t, a0, []types.Author{a0, a1})

	err := m.ProcessMessage(context.Background(), a1, network.Message{
		Kind:                  types.KindEpochRetrievalRequest,
		EpochRetrievalRequest: &types.EpochRetrievalRequest{StartEpoch: 0, EndEpoch: 9},
	})
	require.Error(t, err)
	require.Equal(t, types.KindInvalidRequest, types.KindOf(err))
	require.Empty(t, sender.sent)
}
