package p2p

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// EventKind identifies the variant of an Event.
type EventKind uint8

const (
	KindConnectionEstablished EventKind = iota + 1
	KindProbeCompleted
	KindNegotiationRejected
	KindConnectionFailed
)

func (k EventKind) String() string {
	switch k {
	case KindConnectionEstablished:
		return "connection_established"
	case KindProbeCompleted:
		return "probe_completed"
	case KindNegotiationRejected:
		return "negotiation_rejected"
	case KindConnectionFailed:
		return "connection_failed"
	default:
		return "unknown"
	}
}

// Event is something observable that happened on a Connection. The
// concrete type is one of ConnectionEstablished, ProbeCompleted,
// NegotiationRejected or ConnectionFailed.
type Event interface {
	Kind() EventKind
	Peer() peer.ID
	At() time.Time
}

// ConnectionEstablished is emitted once, first, when all dial stages
// succeeded.
type ConnectionEstablished struct {
	PeerID  peer.ID
	Addr    ma.Multiaddr
	Elapsed time.Duration
	Time    time.Time
}

func (ConnectionEstablished) Kind() EventKind { return KindConnectionEstablished }
func (e ConnectionEstablished) Peer() peer.ID { return e.PeerID }
func (e ConnectionEstablished) At() time.Time { return e.Time }

// ProbeCompleted is emitted for every probe whose echo matched.
type ProbeCompleted struct {
	PeerID    peer.ID
	RequestID uuid.UUID
	RTT       time.Duration
	Time      time.Time
}

func (ProbeCompleted) Kind() EventKind { return KindProbeCompleted }
func (e ProbeCompleted) Peer() peer.ID { return e.PeerID }
func (e ProbeCompleted) At() time.Time { return e.Time }

// NegotiationRejected is emitted when the remote proposed a protocol on an
// inbound stream that we do not serve. The connection stays open.
type NegotiationRejected struct {
	PeerID    peer.ID
	RequestID uuid.UUID
	Protocol  protocol.ID
	StreamID  string
	Time      time.Time
}

func (NegotiationRejected) Kind() EventKind { return KindNegotiationRejected }
func (e NegotiationRejected) Peer() peer.ID { return e.PeerID }
func (e NegotiationRejected) At() time.Time { return e.Time }

// ConnectionFailed is emitted when an established connection was lost
// without a local Close. It is always the last event.
type ConnectionFailed struct {
	PeerID peer.ID
	Target string
	Err    error
	Time   time.Time
}

func (ConnectionFailed) Kind() EventKind { return KindConnectionFailed }
func (e ConnectionFailed) Peer() peer.ID { return e.PeerID }
func (e ConnectionFailed) At() time.Time { return e.Time }

// eventQueue is an unbounded FIFO drained by one goroutine into out.
// Producers never block; the consumer sees events in push order.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool

	wake    chan struct{}
	out     chan Event
	abandon chan struct{}
	once    sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		wake:    make(chan struct{}, 1),
		out:     make(chan Event),
		abandon: make(chan struct{}),
	}
	go q.run()
	return q
}

// push appends ev. It returns false if the queue is already closed.
func (q *eventQueue) push(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
	return true
}

// close stops accepting events. Queued events are still delivered, then
// out is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// drop discards undelivered events and closes out without waiting for a
// consumer.
func (q *eventQueue) drop() {
	q.close()
	q.once.Do(func() { close(q.abandon) })
}

func (q *eventQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.wake:
			case <-q.abandon:
				return
			}
			continue
		}
		ev := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		select {
		case q.out <- ev:
		case <-q.abandon:
			return
		}
	}
}

// seq adapts the queue's channel to an iterator that stops when the queue
// is drained or ctx is done.
func (q *eventQueue) seq(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-q.out:
				if !ok || !yield(ev) {
					return
				}
			}
		}
	}
}
