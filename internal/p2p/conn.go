package p2p

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// Connection is an authenticated, multiplexed link to one remote peer.
// It owns the event stream for that peer. A Connection is created pending
// by Connect and becomes usable once ConnectionEstablished is queued.
type Connection struct {
	client *Client
	target DialTarget

	mu            sync.Mutex
	conn          network.Conn
	establishedAt time.Time
	closed        bool

	ready    chan struct{} // closed after ConnectionEstablished is queued
	done     chan struct{} // closed when the connection is gone
	doneOnce sync.Once
	events   *eventQueue
}

func newConnection(cl *Client, target DialTarget) *Connection {
	return &Connection{
		client: cl,
		target: target,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		events: newEventQueue(),
	}
}

// RemotePeer returns the authenticated identity of the remote peer.
func (c *Connection) RemotePeer() peer.ID {
	return c.target.Peer
}

// LocalPeer returns our own identity.
func (c *Connection) LocalPeer() peer.ID {
	return c.client.ID()
}

// Target returns the address this connection was dialed from.
func (c *Connection) Target() DialTarget {
	return c.target
}

// RemoteAddr returns the remote address of the underlying connection, or
// the dialed address if the connection is not established.
func (c *Connection) RemoteAddr() ma.Multiaddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.RemoteMultiaddr()
	}
	return c.target.Addr
}

// EstablishedAt returns when all dial stages completed.
func (c *Connection) EstablishedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.establishedAt
}

// IsClosed reports whether the connection was closed locally or lost.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done returns a channel closed when the connection is gone.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Events returns the connection's event stream. Events arrive in the order
// they occurred; the channel is closed after the last one.
func (c *Connection) Events() <-chan Event {
	return c.events.out
}

// All iterates the connection's events until the stream ends or ctx is
// done.
func (c *Connection) All(ctx context.Context) iter.Seq[Event] {
	return c.events.seq(ctx)
}

// Close tears the connection down. In-flight probes fail with
// ErrProbeStreamFailed. Events already queued are still delivered; no
// ConnectionFailed is emitted.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nc := c.conn
	c.mu.Unlock()

	var err error
	if nc != nil {
		err = nc.Close()
	}
	c.finish()
	c.client.forget(c)
	return err
}

// establish attaches the upgraded connection and queues
// ConnectionEstablished ahead of every other event.
func (c *Connection) establish(nc network.Conn, elapsed time.Duration) {
	now := time.Now()
	c.mu.Lock()
	c.conn = nc
	c.establishedAt = now
	c.mu.Unlock()

	c.events.push(ConnectionEstablished{
		PeerID:  c.target.Peer,
		Addr:    nc.RemoteMultiaddr(),
		Elapsed: elapsed,
		Time:    now,
	})
	close(c.ready)
}

// isEstablished reports whether establish has run.
func (c *Connection) isEstablished() bool {
	select {
	case <-c.ready:
		return true
	default:
		return false
	}
}

// waitEstablished blocks until the connection is established or gone.
func (c *Connection) waitEstablished() bool {
	select {
	case <-c.ready:
		return !c.IsClosed()
	case <-c.done:
		return false
	}
}

// owns reports whether nc is the underlying connection.
func (c *Connection) owns(nc network.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nc
}

// emit queues ev unless the connection is gone.
func (c *Connection) emit(ev Event) {
	c.events.push(ev)
}

// fail marks the connection lost, queues ConnectionFailed as the final
// event and releases it. It is a no-op after Close.
func (c *Connection) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.events.push(ConnectionFailed{
		PeerID: c.target.Peer,
		Target: c.target.String(),
		Err:    err,
		Time:   time.Now(),
	})
	c.finish()
	c.client.forget(c)
}

// discard releases a connection that never became established.
func (c *Connection) discard() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.finish()
	c.client.forget(c)
}

func (c *Connection) finish() {
	c.doneOnce.Do(func() {
		close(c.done)
		c.events.close()
	})
}

// newStream opens an outbound stream on the underlying connection.
func (c *Connection) newStream(ctx context.Context) (network.Stream, error) {
	c.mu.Lock()
	nc, closed := c.conn, c.closed
	c.mu.Unlock()
	if closed || nc == nil {
		return nil, ErrConnectionClosed
	}
	return nc.NewStream(ctx)
}
