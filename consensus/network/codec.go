package network

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/strataledger/consensus/consensus/types"
)

// envelope is the tag-plus-payload wire framing spec §6 calls for: a
// message kind byte followed by the RLP encoding of that kind's payload,
// the same two-level structure devp2p message codes use.
type envelope struct {
	Kind    uint8
	Payload []byte
}

// Encode serializes msg into its canonical wire form.
func Encode(msg Message) ([]byte, error) {
	var (
		payload interface{}
	)
	switch msg.Kind {
	case types.KindProposal:
		payload = msg.Proposal
	case types.KindVote:
		payload = msg.Vote
	case types.KindSyncInfo:
		payload = msg.SyncInfo
	case types.KindEpochChangeProof:
		payload = msg.EpochChangeProof
	case types.KindEpochRetrievalRequest:
		payload = msg.EpochRetrievalRequest
	case types.KindBlockRetrievalRequest:
		payload = msg.BlockRetrievalRequest
	case types.KindBlockRetrievalResponse:
		payload = msg.BlockRetrievalResponse
	default:
		return nil, fmt.Errorf("network: unknown message kind %d", msg.Kind)
	}
	raw, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, fmt.Errorf("network: encode payload: %w", err)
	}
	return rlp.EncodeToBytes(envelope{Kind: uint8(msg.Kind), Payload: raw})
}

// Decode parses data into a Message, dispatching on the envelope's kind
// byte. An unrecognized kind is reported as KindUnexpectedMessage per
// spec §4.1's "Other" row.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return Message{}, types.WrapError(types.KindInvalidMessage, "decode envelope", err)
	}
	kind := types.MessageKind(env.Kind)
	msg := Message{Kind: kind}
	var err error
	switch kind {
	case types.KindProposal:
		msg.Proposal = new(types.ProposalMsg)
		err = rlp.DecodeBytes(env.Payload, msg.Proposal)
	case types.KindVote:
		msg.Vote = new(types.VoteMsg)
		err = rlp.DecodeBytes(env.Payload, msg.Vote)
	case types.KindSyncInfo:
		msg.SyncInfo = new(types.SyncInfo)
		err = rlp.DecodeBytes(env.Payload, msg.SyncInfo)
	case types.KindEpochChangeProof:
		msg.EpochChangeProof = new(types.EpochChangeProofMsg)
		err = rlp.DecodeBytes(env.Payload, msg.EpochChangeProof)
	case types.KindEpochRetrievalRequest:
		msg.EpochRetrievalRequest = new(types.EpochRetrievalRequest)
		err = rlp.DecodeBytes(env.Payload, msg.EpochRetrievalRequest)
	case types.KindBlockRetrievalRequest:
		msg.BlockRetrievalRequest = new(types.BlockRetrievalRequest)
		err = rlp.DecodeBytes(env.Payload, msg.BlockRetrievalRequest)
	case types.KindBlockRetrievalResponse:
		msg.BlockRetrievalResponse = new(types.BlockRetrievalResponse)
		err = rlp.DecodeBytes(env.Payload, msg.BlockRetrievalResponse)
	default:
		return Message{}, types.NewError(types.KindUnexpectedMessage, fmt.Sprintf("unknown message kind %d", env.Kind))
	}
	if err != nil {
		return Message{}, types.WrapError(types.KindInvalidMessage, "decode payload", err)
	}
	return msg, nil
}
