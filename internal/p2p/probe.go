package p2p

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/protocol"
	msmux "github.com/multiformats/go-multistream"
)

// probeExchange is one outbound liveness probe.
type probeExchange struct {
	ID      uuid.UUID
	Payload [ProbeSize]byte
	SentAt  time.Time
}

func newProbeExchange() (*probeExchange, error) {
	ex := &probeExchange{ID: uuid.New()}
	if _, err := rand.Read(ex.Payload[:]); err != nil {
		return nil, fmt.Errorf("generate probe payload: %w", err)
	}
	return ex, nil
}

// Probe opens a stream to the connection's peer on the ping protocol,
// sends a random payload and waits for the identical echo. On success it
// emits ProbeCompleted and returns the round-trip time. A failed probe
// leaves the connection open.
func (cl *Client) Probe(ctx context.Context, c *Connection) (time.Duration, error) {
	ex, err := newProbeExchange()
	if err != nil {
		return 0, err
	}
	logger := cl.probeLog.With().
		Str("peer", c.RemotePeer().String()).
		Str("request", ex.ID.String()).
		Logger()

	fail := func(kind ProbeFailure, err error) (time.Duration, error) {
		cl.metrics.probeFailed(kind)
		logger.Warn().Err(err).Str("kind", string(kind)).Msg("Probe failed")
		return 0, &ProbeError{Peer: c.RemotePeer(), RequestID: ex.ID, Kind: kind, Err: err}
	}

	if c.IsClosed() {
		return fail(ProbeStreamFailed, ErrConnectionClosed)
	}

	ctx, cancel := context.WithTimeout(ctx, cl.config.ProbeTimeout)
	defer cancel()

	s, err := c.newStream(ctx)
	if err != nil {
		return fail(cl.probeFailureKind(ctx, c, err), fmt.Errorf("open stream: %w", err))
	}
	// Expiry resets only this stream; the connection stays up.
	stop := context.AfterFunc(ctx, func() { s.Reset() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	if err := selectProtocol(s, ProbeProtocol); err != nil {
		s.Reset()
		return fail(cl.probeFailureKind(ctx, c, err), err)
	}

	ex.SentAt = time.Now()
	if _, err := s.Write(ex.Payload[:]); err != nil {
		s.Reset()
		return fail(cl.probeFailureKind(ctx, c, err), fmt.Errorf("write payload: %w", err))
	}
	var echo [ProbeSize]byte
	if _, err := io.ReadFull(s, echo[:]); err != nil {
		s.Reset()
		return fail(cl.probeFailureKind(ctx, c, err), fmt.Errorf("read echo: %w", err))
	}
	rtt := time.Since(ex.SentAt)

	if !bytes.Equal(echo[:], ex.Payload[:]) {
		s.Reset()
		return fail(ProbeMismatch, fmt.Errorf("sent %x, received %x", ex.Payload[:8], echo[:8]))
	}
	_ = s.Close()

	c.emit(ProbeCompleted{
		PeerID:    c.RemotePeer(),
		RequestID: ex.ID,
		RTT:       rtt,
		Time:      time.Now(),
	})
	cl.metrics.probeSucceeded(rtt.Seconds())
	logger.Debug().Dur("rtt", rtt).Msg("Probe completed")
	return rtt, nil
}

// probeFailureKind decides whether a stream error was the probe timing out
// or the stream (or its connection) failing.
func (cl *Client) probeFailureKind(ctx context.Context, c *Connection, err error) ProbeFailure {
	if c.IsClosed() {
		return ProbeStreamFailed
	}
	// The stream deadline can fire a moment before ctx notices.
	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return ProbeTimeout
	}
	var ne net.Error
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &ne) && ne.Timeout():
		return ProbeTimeout
	default:
		return ProbeStreamFailed
	}
}

// selectProtocol negotiates proto as the initiator and tags the stream
// with it. A remote refusal becomes an UnsupportedProtocolError.
func selectProtocol(s network.Stream, proto protocol.ID) error {
	if err := msmux.SelectProtoOrFail(proto, s); err != nil {
		var ns msmux.ErrNotSupported[protocol.ID]
		if errors.As(err, &ns) {
			return &UnsupportedProtocolError{Peer: s.Conn().RemotePeer(), Protocols: ns.Protos}
		}
		return fmt.Errorf("negotiate %s: %w", proto, err)
	}
	if err := s.SetProtocol(proto); err != nil {
		return fmt.Errorf("set protocol %s: %w", proto, err)
	}
	return nil
}
