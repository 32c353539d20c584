package types

// MessageKind tags the variant of a ConsensusMsg on the wire. Values are
// stable across versions since they are part of the RLP-encoded envelope.
type MessageKind uint8

const (
	KindProposal MessageKind = iota + 1
	KindVote
	KindSyncInfo
	KindEpochChangeProof
	KindEpochRetrievalRequest
	KindBlockRetrievalRequest
	KindBlockRetrievalResponse
)

func (k MessageKind) String() string {
	switch k {
	case KindProposal:
		return "Proposal"
	case KindVote:
		return "Vote"
	case KindSyncInfo:
		return "SyncInfo"
	case KindEpochChangeProof:
		return "EpochChangeProof"
	case KindEpochRetrievalRequest:
		return "EpochRetrievalRequest"
	case KindBlockRetrievalRequest:
		return "BlockRetrievalRequest"
	case KindBlockRetrievalResponse:
		return "BlockRetrievalResponse"
	default:
		return "Unknown"
	}
}

// EpochCarrier is implemented by every consensus message that is gated on
// the sender's epoch before being handed to the active processor.
type EpochCarrier interface {
	MessageEpoch() Epoch
}

// ProposalMsg carries a proposed block and the quorum cert for its parent.
// Signature is the proposing author's signature over ProposalDigest, set by
// the Round Manager when it broadcasts a proposal it generated.
type ProposalMsg struct {
	Epoch     Epoch
	Round     Round
	Block     Block
	ParentQC  QuorumCert
	Signature []byte
}

func (m ProposalMsg) MessageEpoch() Epoch { return m.Epoch }

// VoteMsg carries one validator's vote, plus sync info so the recipient can
// catch up if it is behind.
type VoteMsg struct {
	Epoch    Epoch
	Vote     Vote
	SyncInfo SyncInfo
}

func (m VoteMsg) MessageEpoch() Epoch { return m.Epoch }

// SyncInfo lets a replica prove its highest certified and committed rounds
// to a peer, without sending full blocks. Signature is the sending peer's
// signature over SyncInfoDigest, checked when SyncInfo travels as its own
// message kind rather than piggybacked on a VoteMsg.
type SyncInfo struct {
	Epoch         Epoch
	HighestQC     QuorumCert
	HighestCommit QuorumCert
	Signature     []byte
}

func (m SyncInfo) MessageEpoch() Epoch { return m.Epoch }

// HighestCertifiedRound returns the round proven certified by this sync
// info, used by the Round Manager to decide whether it proves advancement.
func (m SyncInfo) HighestCertifiedRound() Round {
	return m.HighestQC.Round
}

// EpochChangeProofMsg wraps an EpochChangeProof for the wire; the inner
// type is shared with the storage-facing API in epoch.go.
type EpochChangeProofMsg struct {
	Proof EpochChangeProof
}

// EpochRetrievalRequest asks a peer (or, when received, asks us) for the
// EpochChangeProof covering [StartEpoch, EndEpoch).
type EpochRetrievalRequest struct {
	StartEpoch Epoch
	EndEpoch   Epoch
}

// BlockRetrievalRequest walks the local block DAG starting at BlockHash.
type BlockRetrievalRequest struct {
	BlockHash   [32]byte
	NumBlocks   uint64
}

// BlockRetrievalStatus reports whether a BlockRetrievalResponse fully,
// partially, or not at all satisfied the request.
type BlockRetrievalStatus uint8

const (
	RetrievalSucceeded BlockRetrievalStatus = iota
	RetrievalNotEnoughBlocks
	RetrievalIDNotFound
)

// BlockRetrievalResponse answers a BlockRetrievalRequest.
type BlockRetrievalResponse struct {
	Status BlockRetrievalStatus
	Blocks []Block
}
