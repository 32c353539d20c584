package discovery

import (
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/stretchr/testify/require"
	"github.com/strataledger/consensus/consensus/types"
)

type fakeSender struct {
	sent []DiscoveryMsg
	to   []types.Author
}

func (f *fakeSender) SendTo(peer types.Author, msg DiscoveryMsg) error {
	f.to = append(f.to, peer)
	f.sent = append(f.sent, msg)
	return nil
}

func author(b byte) types.Author {
	var a types.Author
	a[0] = b
	return a
}

func TestProcessDiscoveryMsg_InboundMergeEmitsFullAddressMap(t *testing.T) {
	var clock mclock.Simulated
	a, b, c := author(1), author(2), author(3)
	updates := make(chan AddressUpdate, 4)
	sender := &fakeSender{}
	g := New(a, []string{"/tcp/9090"}, "example.com", &clock, sender, updates)

	g.ProcessDiscoveryMsg(b, DiscoveryMsg{Notes: []Note{
		{PeerID: b, Addrs: []string{"/tcp/8080"}, Epoch: 100},
	}})
	upd := <-updates
	require.Equal(t, sourceGossip, upd.Source)
	require.Equal(t, []string{"/tcp/9090"}, upd.Addresses[a])
	require.Equal(t, []string{"/tcp/8080"}, upd.Addresses[b])

	g.ProcessDiscoveryMsg(b, DiscoveryMsg{Notes: []Note{
		{PeerID: b, Addrs: []string{"/tcp/1234"}, Epoch: 300},
		{PeerID: c, Addrs: []string{"/tcp/7070"}, Epoch: 200},
	}})
	upd = <-updates
	require.Equal(t, []string{"/tcp/1234"}, upd.Addresses[b])
	require.Equal(t, []string{"/tcp/7070"}, upd.Addresses[c])
	require.Equal(t, []string{"/tcp/9090"}, upd.Addresses[a])
}

func TestProcessDiscoveryMsg_StaleNoteDiscarded(t *testing.T) {
	var clock mclock.Simulated
	a, b := author(1), author(2)
	updates := make(chan AddressUpdate, 4)
	sender := &fakeSender{}
	g := New(a, []string{"/tcp/9090"}, "", &clock, sender, updates)

	g.ProcessDiscoveryMsg(b, DiscoveryMsg{Notes: []Note{{PeerID: b, Addrs: []string{"/tcp/8080"}, Epoch: 200}}})
	<-updates

	g.ProcessDiscoveryMsg(b, DiscoveryMsg{Notes: []Note{{PeerID: b, Addrs: []string{"/tcp/stale"}, Epoch: 100}}})
	select {
	case <-updates:
		t.Fatal("stale note must not emit an address update")
	default:
	}
	require.Equal(t, []string{"/tcp/8080"}, g.Notes()[b].Addrs)
}

func TestSelfNoteBump_HigherEpochAdvancesPastIt(t *testing.T) {
	var clock mclock.Simulated
	a := author(1)
	updates := make(chan AddressUpdate, 4)
	sender := &fakeSender{}
	g := New(a, []string{"/tcp/9090"}, "", &clock, sender, updates)
	before := g.Notes()[a].Epoch

	bumpTo := before + 1_000_000
	g.ProcessDiscoveryMsg(author(2), DiscoveryMsg{Notes: []Note{
		{PeerID: a, Addrs: []string{"/tcp/9091"}, Epoch: bumpTo},
	}})
	<-updates

	g.NewPeer(author(2))
	require.NoError(t, g.Tick())
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	require.Len(t, msg.Notes, 1)
	require.Equal(t, a, msg.Notes[0].PeerID)
	require.Equal(t, []string{"/tcp/9090"}, msg.Notes[0].Addrs)
	require.Greater(t, msg.Notes[0].Epoch, bumpTo)
}

func TestSelfNoteBump_SaturatesAtMaxEpoch(t *testing.T) {
	var clock mclock.Simulated
	a := author(1)
	updates := make(chan AddressUpdate, 4)
	sender := &fakeSender{}
	g := New(a, []string{"/tcp/9090"}, "", &clock, sender, updates)

	g.ProcessDiscoveryMsg(author(2), DiscoveryMsg{Notes: []Note{
		{PeerID: a, Addrs: []string{"/tcp/9091"}, Epoch: math.MaxUint64},
	}})
	<-updates

	g.NewPeer(author(2))
	require.NoError(t, g.Tick())
	msg := sender.sent[0]
	require.Less(t, msg.Notes[0].Epoch, uint64(math.MaxUint64))
}

func TestTick_NoConnectedPeersIsNoop(t *testing.T) {
	var clock mclock.Simulated
	sender := &fakeSender{}
	g := New(author(1), nil, "", &clock, sender, nil)
	require.NoError(t, g.Tick())
	require.Empty(t, sender.sent)
}

func TestLostPeer_RemovesFromOutboundCandidates(t *testing.T) {
	var clock mclock.Simulated
	sender := &fakeSender{}
	g := New(author(1), nil, "", &clock, sender, nil)
	g.NewPeer(author(2))
	g.LostPeer(author(2))
	require.NoError(t, g.Tick())
	require.Empty(t, sender.sent)
}
