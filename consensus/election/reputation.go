package election

import (
	"sync"

	"github.com/strataledger/consensus/consensus/types"
)

// ActiveInactiveHeuristic scores a candidate Active if it was observed
// signing a recent ledger info (inside the sliding window), Inactive
// otherwise.
type ActiveInactiveHeuristic struct {
	ActiveWeight   uint64
	InactiveWeight uint64
}

func (h ActiveInactiveHeuristic) weight(active bool) uint64 {
	if active {
		return h.ActiveWeight
	}
	return h.InactiveWeight
}

// LeaderReputation elects the highest-weight candidate according to an
// Active/Inactive heuristic over a sliding window of the last Window
// observed ledger-info signer sets, breaking ties by canonical ordering.
type LeaderReputation struct {
	mu        sync.Mutex
	proposers []types.Author
	window    int
	history   [][]types.Author // oldest first
	heuristic ActiveInactiveHeuristic
}

// NewLeaderReputation builds a LeaderReputation election over proposers
// (the canonical order), scoring candidates with heuristic over the last
// window observed ledger infos.
func NewLeaderReputation(proposers []types.Author, window int, heuristic ActiveInactiveHeuristic) *LeaderReputation {
	cp := make([]types.Author, len(proposers))
	copy(cp, proposers)
	return &LeaderReputation{
		proposers: cp,
		window:    window,
		heuristic: heuristic,
	}
}

// RecordLedgerInfoSigners pushes the set of authors who signed the most
// recently committed ledger info into the sliding window, evicting the
// oldest entry once the window is full.
func (lr *LeaderReputation) RecordLedgerInfoSigners(signers []types.Author) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	cp := make([]types.Author, len(signers))
	copy(cp, signers)
	lr.history = append(lr.history, cp)
	if len(lr.history) > lr.window && lr.window > 0 {
		lr.history = lr.history[len(lr.history)-lr.window:]
	}
}

func (lr *LeaderReputation) activeSet() map[types.Author]bool {
	active := make(map[types.Author]bool)
	for _, signers := range lr.history {
		for _, a := range signers {
			active[a] = true
		}
	}
	return active
}

// GetValidProposer scores every candidate in the canonical order and
// returns the highest-weight one, breaking ties by canonical position.
// The round itself does not affect the score: the heuristic depends only
// on recent signing activity, so the winner is stable until the window
// shifts.
func (lr *LeaderReputation) GetValidProposer(round types.Round) types.Author {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if len(lr.proposers) == 0 {
		return types.Author{}
	}
	active := lr.activeSet()
	best := lr.proposers[0]
	bestWeight := lr.heuristic.weight(active[best])
	for _, candidate := range lr.proposers[1:] {
		w := lr.heuristic.weight(active[candidate])
		if w > bestWeight {
			best = candidate
			bestWeight = w
		}
	}
	return best
}

func (lr *LeaderReputation) IsValidProposer(author types.Author, round types.Round) bool {
	return lr.GetValidProposer(round) == author
}
