package p2p

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/multiformats/go-multiaddr"
)

// connNotifier tracks connection lifecycle events via the network.Notifiee
// interface. It fails a Connection when its underlying link goes away
// without a local Close.
type connNotifier struct {
	client *Client
}

// Connected is called when a new connection is opened.
func (cn *connNotifier) Connected(_ network.Network, conn network.Conn) {
	cn.client.log.Debug().
		Str("peer", conn.RemotePeer().String()).
		Str("addr", conn.RemoteMultiaddr().String()).
		Str("direction", conn.Stat().Direction.String()).
		Msg("Connection opened")
}

// Disconnected is called when a connection is closed. The Connection is
// only failed if there are no remaining connections to the peer.
func (cn *connNotifier) Disconnected(net network.Network, conn network.Conn) {
	remotePeer := conn.RemotePeer()
	c := cn.client.lookup(remotePeer)
	if c == nil || !c.owns(conn) {
		return
	}
	if len(net.ConnsToPeer(remotePeer)) > 0 {
		return
	}
	cn.client.log.Warn().
		Str("peer", remotePeer.String()).
		Msg("Connection lost")
	go c.fail(fmt.Errorf("remote %s: %w", conn.RemoteMultiaddr(), ErrConnectionClosed))
}

// Listen is called when the client starts listening on a new address.
func (cn *connNotifier) Listen(network.Network, multiaddr.Multiaddr) {}

// ListenClose is called when the client stops listening on an address.
func (cn *connNotifier) ListenClose(network.Network, multiaddr.Multiaddr) {}
