// Package election implements the three Proposer Election variants from
// spec §4.5: Rotating, Fixed, and Leader Reputation.
package election

import "github.com/strataledger/consensus/consensus/types"

// ProposerElection maps a round to its designated leader, given the
// canonical author ordering fixed for the epoch.
type ProposerElection interface {
	GetValidProposer(round types.Round) types.Author
	IsValidProposer(author types.Author, round types.Round) bool
}

// Rotating cycles through proposers in the canonical order, holding each
// leader for ContiguousRounds rounds before advancing.
type Rotating struct {
	proposers        []types.Author
	contiguousRounds uint64
}

// NewRotating builds a Rotating election over proposers, holding each
// leader for contiguousRounds consecutive rounds. contiguousRounds is
// clamped to 1 since a stride of zero would divide by zero.
func NewRotating(proposers []types.Author, contiguousRounds uint64) *Rotating {
	if contiguousRounds == 0 {
		contiguousRounds = 1
	}
	cp := make([]types.Author, len(proposers))
	copy(cp, proposers)
	return &Rotating{proposers: cp, contiguousRounds: contiguousRounds}
}

func (r *Rotating) GetValidProposer(round types.Round) types.Author {
	if len(r.proposers) == 0 {
		return types.Author{}
	}
	idx := (round / r.contiguousRounds) % uint64(len(r.proposers))
	return r.proposers[idx]
}

func (r *Rotating) IsValidProposer(author types.Author, round types.Round) bool {
	return r.GetValidProposer(round) == author
}

// ChooseFixedLeader deterministically selects the author a Fixed election
// should pin, from the canonical ordering: the first entry.
func ChooseFixedLeader(proposers []types.Author) types.Author {
	if len(proposers) == 0 {
		return types.Author{}
	}
	return proposers[0]
}

// NewFixed builds a Fixed election: a Rotating election over a singleton
// set containing the deterministically chosen leader.
func NewFixed(proposers []types.Author, contiguousRounds uint64) *Rotating {
	leader := ChooseFixedLeader(proposers)
	return NewRotating([]types.Author{leader}, contiguousRounds)
}
