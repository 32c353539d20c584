// Package network declares the capability interfaces for the low-level
// transport: best-effort unicast/broadcast sending, and the independent
// inbound streams of consensus messages and block-retrieval requests.
// Connection events are not carried here. Peer manager and framed message
// delivery themselves are out of scope for this module.
package network

import (
	"github.com/strataledger/consensus/consensus/types"
)

// Message is the tagged envelope every consensus wire message travels in.
// Exactly one of the payload fields is populated, matching Kind.
type Message struct {
	Kind                   types.MessageKind
	Proposal               *types.ProposalMsg
	Vote                   *types.VoteMsg
	SyncInfo               *types.SyncInfo
	EpochChangeProof       *types.EpochChangeProofMsg
	EpochRetrievalRequest  *types.EpochRetrievalRequest
	BlockRetrievalRequest  *types.BlockRetrievalRequest
	BlockRetrievalResponse *types.BlockRetrievalResponse
}

// Epoch returns the epoch the message is tagged with, for the epoch-gating
// decision in spec §4.1. EpochRetrievalRequest and BlockRetrievalRequest/
// Response do not carry a consensus epoch and return ok=false.
func (m Message) Epoch() (types.Epoch, bool) {
	switch m.Kind {
	case types.KindProposal:
		return m.Proposal.Epoch, true
	case types.KindVote:
		return m.Vote.Epoch, true
	case types.KindSyncInfo:
		return m.SyncInfo.Epoch, true
	case types.KindEpochChangeProof:
		e, ok := m.EpochChangeProof.Proof.FirstEpoch()
		return e, ok
	default:
		return 0, false
	}
}

// IncomingBlockRetrievalRequest pairs a BlockRetrievalRequest with the peer
// it arrived from and the channel a response must be delivered on.
type IncomingBlockRetrievalRequest struct {
	Peer     types.Author
	Request  types.BlockRetrievalRequest
	Response chan<- types.BlockRetrievalResponse
}

// InboundMessage pairs a Message with the peer it arrived from.
type InboundMessage struct {
	Peer types.Author
	Msg  Message
}

// Sender is the outbound half of the network capability: best-effort
// unicast and validator-set broadcast. Failures are KindTransport and must
// not abort a broadcast's remaining sends.
type Sender interface {
	SendTo(peer types.Author, msg Message) error
	Broadcast(recipients []types.Author, msg Message) []error
}

// Receivers exposes the two independent inbound streams the Epoch
// Manager's event loop selects over, alongside reconfiguration and local
// timeouts which are owned by the epoch package. There is no
// connection-event stream.
type Receivers struct {
	ConsensusMessages chan InboundMessage
	BlockRetrieval    chan IncomingBlockRetrievalRequest
}
