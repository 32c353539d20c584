// Package safety declares the capability interface for the cryptographic
// safety-rules client. The rules themselves — non-equivocation, locked-round
// enforcement, the actual signer — are an external collaborator and out of
// scope for this module; only the narrow surface the Round/Recovery
// managers call through is defined here.
package safety

import "github.com/strataledger/consensus/consensus/types"

// ConsensusState reports the safety rules' view of recovery progress,
// enough to resolve the waypoint storage needs on initialization.
type ConsensusState struct {
	WaypointVersion uint64
	LastVotedRound  types.Round
}

// Client is single-owned by the active processor. On processor teardown it
// MUST be released before the successor's Client is constructed, so that
// two clients never race on the same signer.
type Client interface {
	// ConsensusState returns the signer's last-known safety state.
	ConsensusState() (ConsensusState, error)
	// Initialize feeds the signer the epoch-change proof chain leading up
	// to its current waypoint, so it can validate future requests.
	Initialize(proof types.EpochChangeProof) error
	// SignProposal asks the signer to vouch for a proposal under the
	// active safety rules (extends the locked block, round > last voted).
	// A rejection is a KindSafetyViolation and MUST NOT be retried with
	// different input.
	SignProposal(block types.Block, parentQC types.QuorumCert) (types.Vote, error)
	// SignTimeout asks the signer to vouch for a timeout at round.
	SignTimeout(round types.Round) ([]byte, error)
	// Sign asks the signer to produce a raw signature over digest, used to
	// authenticate proposal envelopes this replica originates (as opposed
	// to SignProposal, which returns a vote).
	Sign(digest []byte) ([]byte, error)
}
