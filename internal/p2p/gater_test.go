package p2p

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

func TestStageGater_AllowsEverything(t *testing.T) {
	g := newStageGater()
	id := peer.ID("peer")

	if !g.InterceptPeerDial(id) {
		t.Error("should allow peer dial")
	}
	if !g.InterceptAddrDial(id, ma.StringCast("/ip4/127.0.0.1/tcp/1")) {
		t.Error("should allow address dial")
	}
	// Accept always allows because peer identity is not known yet.
	if !g.InterceptAccept(nil) {
		t.Error("InterceptAccept should always allow")
	}
	if !g.InterceptSecured(network.DirInbound, id, nil) {
		t.Error("should allow secured inbound connection")
	}
}

func TestStageGater_TracksProgress(t *testing.T) {
	g := newStageGater()
	id := peer.ID("peer")

	g.begin(id)
	g.InterceptAddrDial(id, ma.StringCast("/ip4/127.0.0.1/tcp/1"))
	g.InterceptSecured(network.DirOutbound, id, nil)
	if got := g.end(id); got != progressSecured {
		t.Errorf("progress = %d, want %d", got, progressSecured)
	}

	// end forgets the peer.
	if got := g.end(id); got != progressNone {
		t.Errorf("progress after end = %d, want none", got)
	}
}

func TestStageGater_IgnoresUntracked(t *testing.T) {
	g := newStageGater()
	id := peer.ID("peer")

	g.InterceptSecured(network.DirOutbound, id, nil)
	g.begin(id)
	if got := g.end(id); got != progressNone {
		t.Errorf("progress = %d, want none", got)
	}
}

func TestStageGater_InboundDoesNotAdvance(t *testing.T) {
	g := newStageGater()
	id := peer.ID("peer")

	g.begin(id)
	g.InterceptSecured(network.DirInbound, id, nil)
	if got := g.end(id); got != progressNone {
		t.Errorf("progress = %d, want none", got)
	}
}

func TestStageGater_NeverRegresses(t *testing.T) {
	g := newStageGater()
	id := peer.ID("peer")

	g.begin(id)
	g.InterceptSecured(network.DirOutbound, id, nil)
	g.InterceptAddrDial(id, ma.StringCast("/ip4/127.0.0.1/tcp/2"))
	if got := g.end(id); got != progressSecured {
		t.Errorf("progress = %d, want %d", got, progressSecured)
	}
}
