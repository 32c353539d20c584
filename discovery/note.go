package discovery

import "github.com/strataledger/consensus/consensus/types"

// Note is one peer's self-reported address set, compared against other
// notes for the same peer purely by Epoch: higher wins, ties keep
// whichever is already stored. Epoch is a monotonic timestamp the
// originating peer chooses, NOT the consensus epoch.
type Note struct {
	PeerID    types.Author
	Addrs     []string
	DNSName   string
	Epoch     uint64
	Signature []byte
}

// DiscoveryMsg is the batch gossip payload exchanged between peers.
type DiscoveryMsg struct {
	Notes []Note
}

// AddressUpdate is emitted whenever the merge of an inbound DiscoveryMsg
// changes any peer's known address set. It always carries the full
// current map, never a delta, matching ConnectivityRequest::UpdateAddresses.
type AddressUpdate struct {
	Source    string
	Addresses map[types.Author][]string
}

const sourceGossip = "Gossip"
