// Package roundstate implements the per-round timer and vote deadline with
// exponential backoff described in spec §4.4: RoundState.
package roundstate

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/strataledger/consensus/consensus/types"
)

// maxBackoffSteps bounds the exponential backoff exponent: the interval
// grows from base to base*1.5^6 (~11x) and no further.
const maxBackoffSteps = 6

const backoffFactor = 1.5

// RoundState tracks the current round's deadline and the number of
// consecutive timeouts observed without progress. The deadline timer is
// self-cancelling: advancing the round via NewRound discards any
// outstanding timer, and a late-firing callback for a stale round is
// dropped by ProcessLocalTimeout's round check rather than by cancelling
// the underlying mclock timer synchronously.
type RoundState struct {
	mu            sync.Mutex
	clock         mclock.Clock
	base          time.Duration
	timeoutSender chan<- types.Round

	round types.Round
	k     int
	timer mclock.Timer
}

// New constructs a RoundState. timeoutSender receives a Round every time a
// deadline fires; the Epoch Manager's event loop forwards it to
// process_local_timeout.
func New(clock mclock.Clock, baseTimeout time.Duration, timeoutSender chan<- types.Round) *RoundState {
	return &RoundState{
		clock:         clock,
		base:          baseTimeout,
		timeoutSender: timeoutSender,
	}
}

// Interval returns the deadline duration for the given consecutive-timeout
// depth k: base * 1.5^min(k,6).
func Interval(base time.Duration, k int) time.Duration {
	if k > maxBackoffSteps {
		k = maxBackoffSteps
	}
	if k < 0 {
		k = 0
	}
	factor := math.Pow(backoffFactor, float64(k))
	return time.Duration(float64(base) * factor)
}

// CurrentRound returns the round this RoundState is currently timing.
func (rs *RoundState) CurrentRound() types.Round {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.round
}

// NewRound arms the deadline for round with a fresh, zeroed backoff depth:
// it signals that progress was made (a QC or timeout certificate advanced
// the round), so the consecutive-timeout streak resets.
func (rs *RoundState) NewRound(round types.Round) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.round = round
	rs.k = 0
	rs.arm()
}

// ProcessLocalTimeout is called when a previously armed deadline fires. It
// reports false if round is stale (the round has already advanced past
// it), in which case the caller must discard the timeout rather than
// broadcast a timeout vote. Otherwise it extends the deadline for the same
// round with one more step of exponential backoff and reports true.
func (rs *RoundState) ProcessLocalTimeout(round types.Round) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if round != rs.round {
		return false
	}
	rs.k++
	rs.arm()
	return true
}

// arm must be called with rs.mu held. It stops any outstanding timer and
// schedules a new one for the current round/backoff depth.
func (rs *RoundState) arm() {
	if rs.timer != nil {
		rs.timer.Stop()
	}
	round := rs.round
	interval := Interval(rs.base, rs.k)
	rs.timer = rs.clock.AfterFunc(interval, func() {
		select {
		case rs.timeoutSender <- round:
		default:
			// timeout channel full: a pending timeout for this round is
			// already queued, dropping a duplicate is harmless.
		}
	})
}

func (rs *RoundState) String() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return fmt.Sprintf("RoundState{round=%d, consecutive_timeouts=%d}", rs.round, rs.k)
}
