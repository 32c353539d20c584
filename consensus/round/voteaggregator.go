package round

import (
	"sync"

	"github.com/strataledger/consensus/consensus/types"
)

// voteAggregator accumulates votes for (round, blockHash) pairs and
// reports when the accumulated voting power crosses the verifier's quorum
// threshold. It is scoped to one epoch, matching EpochState's lifetime.
type voteAggregator struct {
	mu       sync.Mutex
	verifier *types.ValidatorVerifier
	power    map[[32]byte]uint64
	voted    map[[32]byte]map[types.Author]struct{}
	formedQC map[[32]byte]bool
}

func newVoteAggregator(verifier *types.ValidatorVerifier) *voteAggregator {
	return &voteAggregator{
		verifier: verifier,
		power:    make(map[[32]byte]uint64),
		voted:    make(map[[32]byte]map[types.Author]struct{}),
		formedQC: make(map[[32]byte]bool),
	}
}

// AddVote records v and reports whether it just completed a quorum cert
// for its block (false on every call after the first past threshold, so
// callers only act on the threshold-crossing edge).
func (a *voteAggregator) AddVote(v types.Vote) (crossedQuorum bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.verifier.Contains(v.Author) {
		return false
	}
	seen := a.voted[v.BlockHash]
	if seen == nil {
		seen = make(map[types.Author]struct{})
		a.voted[v.BlockHash] = seen
	}
	if _, dup := seen[v.Author]; dup {
		return false
	}
	seen[v.Author] = struct{}{}
	a.power[v.BlockHash] += a.verifier.VotingPower(v.Author)

	if a.formedQC[v.BlockHash] {
		return false
	}
	if a.power[v.BlockHash] >= a.verifier.QuorumVotingPower() {
		a.formedQC[v.BlockHash] = true
		return true
	}
	return false
}
