package types

// Round is a monotonic consensus slot within an Epoch. Round numbers reset
// to zero at the start of every epoch.
type Round = uint64

// Epoch is a strictly-increasing reconfiguration counter.
type Epoch = uint64
