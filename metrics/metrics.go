// Package metrics registers the gauges and timers the Epoch Manager
// updates as it runs, mirroring the source's counters module: current
// epoch, validator-set size, quorum size, and event-loop idle/busy time.
package metrics

import (
	"time"

	gethmetrics "github.com/ethereum/go-ethereum/metrics"
)

var (
	Epoch                 = gethmetrics.NewRegisteredGauge("consensus/epoch", nil)
	CurrentEpochValidators = gethmetrics.NewRegisteredGauge("consensus/epoch/validators", nil)
	CurrentEpochQuorumSize = gethmetrics.NewRegisteredGauge("consensus/epoch/quorum_size", nil)

	EventLoopIdleDuration = gethmetrics.NewRegisteredTimer("consensus/eventloop/idle", nil)
	EventLoopBusyDuration = gethmetrics.NewRegisteredTimer("consensus/eventloop/busy", nil)

	ProposalsProcessed = gethmetrics.NewRegisteredCounter("consensus/round/proposals", nil)
	VotesProcessed     = gethmetrics.NewRegisteredCounter("consensus/round/votes", nil)
	BlocksCommitted    = gethmetrics.NewRegisteredCounter("consensus/round/commits", nil)

	DiscoveryPeers = gethmetrics.NewRegisteredGauge("consensus/discovery/peers", nil)
)

// ObserveLoopIteration updates the idle/busy timers for one pass of the
// Epoch Manager's event loop, given when the select became ready
// (readyAt) and when the dispatched handler returned (doneAt), with
// idleDuration the time spent waiting before a branch was ready.
func ObserveLoopIteration(readyAt, doneAt time.Time, idleDuration time.Duration) {
	EventLoopIdleDuration.Update(idleDuration)
	EventLoopBusyDuration.Update(doneAt.Sub(readyAt) - idleDuration)
}
