// Package storage declares the capability interface for the persistent
// liveness store and block DAG: the append-only storage that backs
// recovery. Its on-disk format and pruning policy are out of scope here;
// only the surface the Epoch Manager and Round/Recovery managers call
// through is defined.
package storage

import "github.com/strataledger/consensus/consensus/types"

// StartupData is the sum type storage.Start returns: either a full
// RecoveryData (the block DAG can be reconstructed locally) or a
// LedgerRecoveryData (it cannot, and a Recovery Manager must bootstrap).
type StartupData struct {
	Recovery       *types.RecoveryData
	LedgerRecovery *types.LedgerRecoveryData
}

// IsRecoverable reports whether Start yielded a full RecoveryData.
func (d StartupData) IsRecoverable() bool {
	return d.Recovery != nil
}

// Storage is shared by reference across processors and is expected to be
// internally thread-safe. Loss of the persistent liveness store degrades
// Start to a LedgerRecoveryData result, forcing Recovery Manager use.
type Storage interface {
	// Start consults local storage once per start_processor call and
	// reports whether the block DAG can be rebuilt without peer help.
	Start() (StartupData, error)
	// GetEpochChangeLedgerInfos returns the EpochChangeProof covering
	// [startEpoch, endEpoch). endEpoch must not exceed the caller's
	// current epoch; the Epoch Manager enforces that before calling this.
	GetEpochChangeLedgerInfos(startEpoch, endEpoch types.Epoch) (types.EpochChangeProof, error)
	// RetrieveEpochChangeProof returns the proof chain leading up to the
	// safety-rules waypoint, used to initialize a fresh safety client.
	RetrieveEpochChangeProof(waypointVersion uint64) (types.EpochChangeProof, error)
	// SaveVote persists the last vote sent, so it can be resent on
	// restart instead of silently dropped.
	SaveVote(vote types.Vote) error
}
