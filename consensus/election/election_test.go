package election

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/strataledger/consensus/consensus/types"
)

func author(b byte) types.Author {
	var a types.Author
	a[len(a)-1] = b
	return a
}

func TestRotating_HoldsLeaderForContiguousRounds(t *testing.T) {
	authors := []types.Author{author(1), author(2), author(3)}
	r := NewRotating(authors, 2)

	assert.Equal(t, authors[0], r.GetValidProposer(0))
	assert.Equal(t, authors[0], r.GetValidProposer(1))
	assert.Equal(t, authors[1], r.GetValidProposer(2))
	assert.Equal(t, authors[1], r.GetValidProposer(3))
	assert.Equal(t, authors[2], r.GetValidProposer(4))
	// wraps back around
	assert.Equal(t, authors[0], r.GetValidProposer(6))
}

func TestRotating_ZeroStrideClampedToOne(t *testing.T) {
	authors := []types.Author{author(1), author(2)}
	r := NewRotating(authors, 0)
	assert.Equal(t, authors[0], r.GetValidProposer(0))
	assert.Equal(t, authors[1], r.GetValidProposer(1))
}

func TestFixed_PinsFirstCanonicalAuthor(t *testing.T) {
	authors := []types.Author{author(9), author(2), author(3)}
	f := NewFixed(authors, 5)
	for round := types.Round(0); round < 20; round++ {
		assert.Equal(t, authors[0], f.GetValidProposer(round))
	}
}

func TestLeaderReputation_PrefersActiveCandidate(t *testing.T) {
	a1, a2, a3 := author(1), author(2), author(3)
	lr := NewLeaderReputation([]types.Author{a1, a2, a3}, 2, ActiveInactiveHeuristic{
		ActiveWeight:   10,
		InactiveWeight: 1,
	})
	// Nobody active yet: ties broken by canonical order.
	assert.Equal(t, a1, lr.GetValidProposer(0))

	lr.RecordLedgerInfoSigners([]types.Author{a2})
	assert.Equal(t, a2, lr.GetValidProposer(1))
	assert.True(t, lr.IsValidProposer(a2, 1))
	assert.False(t, lr.IsValidProposer(a1, 1))
}

func TestLeaderReputation_WindowEvictsStaleActivity(t *testing.T) {
	a1, a2 := author(1), author(2)
	lr := NewLeaderReputation([]types.Author{a1, a2}, 1, ActiveInactiveHeuristic{
		ActiveWeight:   10,
		InactiveWeight: 1,
	})
	lr.RecordLedgerInfoSigners([]types.Author{a1})
	assert.Equal(t, a1, lr.GetValidProposer(0))

	// Window length 1: recording a2's activity evicts a1's.
	lr.RecordLedgerInfoSigners([]types.Author{a2})
	assert.Equal(t, a2, lr.GetValidProposer(1))
}
