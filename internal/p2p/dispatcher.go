package p2p

import (
	"errors"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	msmux "github.com/multiformats/go-multistream"
	"github.com/rs/zerolog"
)

// negotiation is one inbound stream's protocol negotiation.
type negotiation struct {
	ID       uuid.UUID
	Peer     peer.ID
	Stream   network.Stream
	Rejected []protocol.ID // distinct unsupported proposals, in order
}

func (n *negotiation) reject(p protocol.ID) {
	if !slices.Contains(n.Rejected, p) {
		n.Rejected = append(n.Rejected, p)
	}
}

// dispatcher answers inbound streams. It serves the ping echo and refuses
// every other protocol, turning each refusal into a NegotiationRejected
// event on the peer's Connection.
type dispatcher struct {
	client   *Client
	log      zerolog.Logger
	handlers map[protocol.ID]network.StreamHandler
}

func newDispatcher(cl *Client) *dispatcher {
	d := &dispatcher{
		client:   cl,
		log:      cl.dispatchLog,
		handlers: make(map[protocol.ID]network.StreamHandler),
	}
	d.handlers[ProbeProtocol] = d.servePing
	return d
}

// supported returns the served protocol IDs, sorted.
func (d *dispatcher) supported() []protocol.ID {
	ids := make([]protocol.ID, 0, len(d.handlers))
	for id := range d.handlers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// handleStream is installed as the network's stream handler.
func (d *dispatcher) handleStream(s network.Stream) {
	n := &negotiation{
		ID:     uuid.New(),
		Peer:   s.Conn().RemotePeer(),
		Stream: s,
	}
	logger := d.log.With().
		Str("peer", n.Peer.String()).
		Str("stream", s.ID()).
		Str("request", n.ID.String()).
		Logger()

	_ = s.SetReadDeadline(time.Now().Add(negotiationTimeout))
	proto, err := d.negotiate(n)
	if err != nil {
		if len(n.Rejected) > 0 {
			_ = s.ResetWithError(network.StreamProtocolNegotiationFailed)
		} else {
			_ = s.Reset()
		}
		if !errors.Is(err, io.EOF) {
			logger.Debug().Err(err).Msg("Inbound negotiation failed")
		}
		d.report(n, logger)
		return
	}
	// Proposals refused before the remote settled on a served protocol
	// are reported too.
	d.report(n, logger)

	_ = s.SetReadDeadline(time.Time{})
	if err := s.SetProtocol(proto); err != nil {
		logger.Debug().Err(err).Str("protocol", string(proto)).Msg("Stream protocol refused by resource manager")
		_ = s.Reset()
		return
	}
	d.client.metrics.negotiationAccepted()
	logger.Debug().Str("protocol", string(proto)).Msg("Inbound stream accepted")
	d.handlers[proto](s)
}

// negotiate runs multistream-select as the listener. A catch-all matcher
// registered first records every proposal we do not serve; it never
// matches, so the muxer answers "na" and the remote may try another.
func (d *dispatcher) negotiate(n *negotiation) (protocol.ID, error) {
	mux := msmux.NewMultistreamMuxer[protocol.ID]()
	mux.AddHandlerWithFunc("", func(p protocol.ID) bool {
		if _, ok := d.handlers[p]; !ok {
			n.reject(p)
		}
		return false
	}, nil)
	for id := range d.handlers {
		mux.AddHandler(id, nil)
	}
	proto, _, err := mux.Negotiate(n.Stream)
	return proto, err
}

// report emits one NegotiationRejected per refused protocol, after the
// peer's ConnectionEstablished.
func (d *dispatcher) report(n *negotiation, logger zerolog.Logger) {
	if len(n.Rejected) == 0 {
		return
	}
	for _, p := range n.Rejected {
		d.client.metrics.negotiationRejected()
		logger.Warn().Str("protocol", string(p)).Msg("Rejected unsupported inbound protocol")
	}

	c := d.client.lookup(n.Peer)
	if c == nil {
		logger.Debug().Msg("Rejection from peer without a client connection")
		return
	}
	if !c.waitEstablished() {
		return
	}
	now := time.Now()
	for _, p := range n.Rejected {
		c.emit(NegotiationRejected{
			PeerID:    n.Peer,
			RequestID: n.ID,
			Protocol:  p,
			StreamID:  n.Stream.ID(),
			Time:      now,
		})
	}
}

// servePing echoes fixed-size payloads until the remote closes the stream
// or goes idle.
func (d *dispatcher) servePing(s network.Stream) {
	buf := make([]byte, ProbeSize)
	for {
		_ = s.SetReadDeadline(time.Now().Add(pingIdleTimeout))
		if _, err := io.ReadFull(s, buf); err != nil {
			if errors.Is(err, io.EOF) {
				_ = s.Close()
			} else {
				_ = s.Reset()
			}
			return
		}
		if _, err := s.Write(buf); err != nil {
			_ = s.Reset()
			return
		}
	}
}
