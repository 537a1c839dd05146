package p2p

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// dialProgress is how far an outbound dial to a peer got.
type dialProgress uint8

const (
	progressNone     dialProgress = iota
	progressDialing               // address dial attempted
	progressSecured               // security handshake done, identity proven
	progressUpgraded              // muxer negotiated
)

// stageGater implements the libp2p ConnectionGater interface. It admits
// every connection and records how far each outbound dial progressed, so a
// failed Connect can name the stage it failed at.
type stageGater struct {
	mu       sync.Mutex
	progress map[peer.ID]dialProgress
}

func newStageGater() *stageGater {
	return &stageGater{progress: make(map[peer.ID]dialProgress)}
}

// begin resets the tracked progress for a new dial to p.
func (g *stageGater) begin(p peer.ID) {
	g.mu.Lock()
	g.progress[p] = progressNone
	g.mu.Unlock()
}

// end stops tracking p and returns the progress reached.
func (g *stageGater) end(p peer.ID) dialProgress {
	g.mu.Lock()
	defer g.mu.Unlock()
	reached := g.progress[p]
	delete(g.progress, p)
	return reached
}

func (g *stageGater) advance(p peer.ID, to dialProgress) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.progress[p]; ok && to > cur {
		g.progress[p] = to
	}
}

// InterceptPeerDial allows all outbound dials.
func (g *stageGater) InterceptPeerDial(_ peer.ID) bool {
	return true
}

// InterceptAddrDial records that a transport dial to p is being attempted.
func (g *stageGater) InterceptAddrDial(p peer.ID, _ ma.Multiaddr) bool {
	g.advance(p, progressDialing)
	return true
}

// InterceptAccept allows all inbound connections at the transport layer.
// Peer identity is not yet known at this stage.
func (g *stageGater) InterceptAccept(_ network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured records that p proved its identity on an outbound
// connection.
func (g *stageGater) InterceptSecured(dir network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	if dir == network.DirOutbound {
		g.advance(p, progressSecured)
	}
	return true
}

// InterceptUpgraded records that the muxer was negotiated.
func (g *stageGater) InterceptUpgraded(c network.Conn) (bool, control.DisconnectReason) {
	if c.Stat().Direction == network.DirOutbound {
		g.advance(c.RemotePeer(), progressUpgraded)
	}
	return true, 0
}
