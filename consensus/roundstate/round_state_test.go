package roundstate

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/strataledger/consensus/consensus/types"
)

func TestInterval_ExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cases := []struct {
		k    int
		want time.Duration
	}{
		{0, base},
		{1, time.Duration(float64(base) * 1.5)},
		{6, time.Duration(float64(base) * 11.390625)},
		{7, time.Duration(float64(base) * 11.390625)}, // capped at k=6
		{100, time.Duration(float64(base) * 11.390625)},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Interval(base, c.k), "k=%d", c.k)
	}
}

func TestRoundState_FiresTimeoutAfterDeadline(t *testing.T) {
	var clock mclock.Simulated
	timeouts := make(chan types.Round, 4)
	rs := New(&clock, 10*time.Millisecond, timeouts)

	rs.NewRound(5)
	clock.Run(10 * time.Millisecond)

	select {
	case r := <-timeouts:
		require.Equal(t, types.Round(5), r)
	case <-time.After(time.Second):
		t.Fatal("timeout did not fire")
	}
}

func TestRoundState_StaleTimeoutDiscarded(t *testing.T) {
	var clock mclock.Simulated
	timeouts := make(chan types.Round, 4)
	rs := New(&clock, 10*time.Millisecond, timeouts)

	rs.NewRound(5)
	// Round advances before the round-5 deadline is ever processed.
	rs.NewRound(6)

	require.False(t, rs.ProcessLocalTimeout(5))
	require.True(t, rs.ProcessLocalTimeout(6))
}

func TestRoundState_BackoffGrowsOnRepeatedTimeout(t *testing.T) {
	var clock mclock.Simulated
	timeouts := make(chan types.Round, 4)
	rs := New(&clock, 50*time.Millisecond, timeouts)

	rs.NewRound(1)
	require.True(t, rs.ProcessLocalTimeout(1))
	require.True(t, rs.ProcessLocalTimeout(1))
	assert.Equal(t, 2, rs.k)

	// k is now 2: a fresh NewRound resets the streak back to base.
	rs.NewRound(2)
	assert.Equal(t, types.Round(2), rs.CurrentRound())
	assert.Equal(t, 0, rs.k)
}
