// Package discovery implements the Gossip Discovery subsystem (spec
// §4.6): eventually-consistent dissemination of peer addresses via a
// peer_id -> Note map, merged on receipt and periodically broadcast to
// one connected peer.
package discovery

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	gethlog "github.com/ethereum/go-ethereum/log"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/strataledger/consensus/consensus/types"
	"github.com/strataledger/consensus/metrics"
)

// Sender is the outbound half of the discovery transport: best-effort
// unicast of a gossip batch to one peer.
type Sender interface {
	SendTo(peer types.Author, msg DiscoveryMsg) error
}

// Gossip owns the local peer_id -> Note map and the connected-peer set.
// It is driven by a single-threaded cooperative loop, same as the Epoch
// Manager: ProcessDiscoveryMsg, Tick, NewPeer and LostPeer are never
// called concurrently with each other by Start's loop.
type Gossip struct {
	mu sync.Mutex

	self  types.Author
	clock mclock.Clock

	notes     map[types.Author]Note
	connected mapset.Set[types.Author]

	sender  Sender
	updates chan<- AddressUpdate

	log gethlog.Logger
}

// New constructs a Gossip actor, seeding the self-note from addrs/dnsName
// with epoch = current wall-clock microseconds.
func New(self types.Author, addrs []string, dnsName string, clock mclock.Clock, sender Sender, updates chan<- AddressUpdate) *Gossip {
	g := &Gossip{
		self:      self,
		clock:     clock,
		notes:     make(map[types.Author]Note),
		connected: mapset.NewSet[types.Author](),
		sender:    sender,
		updates:   updates,
		log:       gethlog.Root().New("component", "discovery"),
	}
	g.notes[self] = Note{
		PeerID:  self,
		Addrs:   addrs,
		DNSName: dnsName,
		Epoch:   g.nowMicros(),
	}
	return g
}

func (g *Gossip) nowMicros() uint64 {
	return uint64(g.clock.Now()) / 1000
}

// addOneSaturating returns v+1, or MaxUint64-1 if v is already
// MaxUint64: the self-note epoch must stay strictly comparable without
// wrapping even when a peer replays a note claiming the maximum epoch.
func addOneSaturating(v uint64) uint64 {
	if v == math.MaxUint64 {
		return math.MaxUint64 - 1
	}
	return v + 1
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// ProcessDiscoveryMsg merges an inbound batch of notes from peer. Any
// note claiming to be about us that carries a higher epoch than our own
// triggers a self-note bump instead of being stored; every other note
// replaces its stored counterpart only if strictly newer. An
// AddressUpdate carrying the full map is emitted iff anything changed.
func (g *Gossip) ProcessDiscoveryMsg(peer types.Author, msg DiscoveryMsg) {
	g.mu.Lock()
	changed := false
	for _, n := range msg.Notes {
		if n.PeerID == g.self {
			self := g.notes[g.self]
			if n.Epoch > self.Epoch {
				self.Epoch = addOneSaturating(maxU64(n.Epoch, g.nowMicros()))
				g.notes[g.self] = self
				changed = true
			}
			continue
		}
		existing, ok := g.notes[n.PeerID]
		if !ok || n.Epoch > existing.Epoch {
			g.notes[n.PeerID] = n
			changed = true
		}
	}
	var update AddressUpdate
	if changed {
		update = g.snapshotLocked()
	}
	g.mu.Unlock()

	if changed && g.updates != nil {
		g.updates <- update
	}
}

// snapshotLocked must be called with g.mu held.
func (g *Gossip) snapshotLocked() AddressUpdate {
	addrs := make(map[types.Author][]string, len(g.notes))
	for id, n := range g.notes {
		addrs[id] = n.Addrs
	}
	return AddressUpdate{Source: sourceGossip, Addresses: addrs}
}

// NewPeer records peer as connected, a candidate for outbound gossip.
func (g *Gossip) NewPeer(peer types.Author) {
	g.connected.Add(peer)
	metrics.DiscoveryPeers.Update(int64(g.connected.Cardinality()))
}

// LostPeer removes peer from the connected set.
func (g *Gossip) LostPeer(peer types.Author) {
	g.connected.Remove(peer)
	metrics.DiscoveryPeers.Update(int64(g.connected.Cardinality()))
}

// Tick sends the full note set to one connected peer, chosen uniformly
// at random, excluding self. It is a no-op with no connected peers.
func (g *Gossip) Tick() error {
	g.mu.Lock()
	var candidates []types.Author
	for _, p := range g.connected.ToSlice() {
		if p != g.self {
			candidates = append(candidates, p)
		}
	}
	msg := DiscoveryMsg{Notes: make([]Note, 0, len(g.notes))}
	for _, n := range g.notes {
		msg.Notes = append(msg.Notes, n)
	}
	g.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}
	target := candidates[rand.Intn(len(candidates))]
	if err := g.sender.SendTo(target, msg); err != nil {
		g.log.Warn("discovery gossip send failed", "peer", target, "err", err)
		return err
	}
	return nil
}

// InboundNote pairs an inbound DiscoveryMsg with the peer it arrived from.
type InboundNote struct {
	Peer types.Author
	Msg  DiscoveryMsg
}

// ConnEvent reports a peer manager connection notification.
type ConnEvent struct {
	Peer      types.Author
	Connected bool // true = NewPeer, false = LostPeer
}

// Start runs the discovery actor's event loop: a single-threaded
// cooperative select over inbound notes, connection events and ticker
// fires, the same concurrency model the Epoch Manager uses. It returns
// when ctxDone closes.
func (g *Gossip) Start(ctxDone <-chan struct{}, ticker <-chan time.Time, inbound <-chan InboundNote, connEvents <-chan ConnEvent) {
	for {
		select {
		case <-ctxDone:
			return
		case n := <-inbound:
			g.ProcessDiscoveryMsg(n.Peer, n.Msg)
		case ev := <-connEvents:
			if ev.Connected {
				g.NewPeer(ev.Peer)
			} else {
				g.LostPeer(ev.Peer)
			}
		case <-ticker:
			if err := g.Tick(); err != nil {
				g.log.Warn("discovery tick failed", "err", err)
			}
		}
	}
}

// Notes returns a snapshot of every note currently stored, keyed by peer.
func (g *Gossip) Notes() map[types.Author]Note {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[types.Author]Note, len(g.notes))
	for k, v := range g.notes {
		out[k] = v
	}
	return out
}
