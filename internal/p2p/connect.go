package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/sec"
)

// Connect establishes an authenticated, multiplexed connection to target:
// transport, then security handshake with identity check, then muxer
// negotiation, all bounded by the dial timeout. If a connection to the
// peer is already open it is returned as is; a concurrent dial to the
// same peer fails with ErrDialInProgress.
func (cl *Client) Connect(ctx context.Context, target DialTarget) (*Connection, error) {
	if target.Addr == nil || target.Peer == "" {
		return nil, &AddressError{Addr: target.String(), Reason: "empty dial target"}
	}
	if target.Peer == cl.host.ID() {
		return nil, &DialError{Peer: target.Peer, Addr: target.Addr, Stage: StageTransport, Err: ErrDialSelf}
	}

	c, existing, err := cl.reserve(target)
	if err != nil {
		return nil, err
	}
	if existing {
		cl.log.Debug().Str("peer", target.Peer.String()).Msg("Already connected")
		return c, nil
	}

	logger := cl.log.With().
		Str("peer", target.Peer.String()).
		Str("addr", target.Addr.String()).
		Logger()
	logger.Debug().Msg("Dialing peer")

	cl.gater.begin(target.Peer)
	cl.host.Peerstore().AddAddr(target.Peer, target.Addr, peerstore.TempAddrTTL)

	dialCtx, cancel := context.WithTimeout(ctx, cl.config.DialTimeout)
	defer cancel()
	dialCtx = network.WithDialPeerTimeout(dialCtx, cl.config.DialTimeout)

	start := time.Now()
	nc, err := cl.host.Network().DialPeer(dialCtx, target.Peer)
	elapsed := time.Since(start)
	reached := cl.gater.end(target.Peer)

	if err == nil && nc.IsClosed() {
		err = ErrConnectionClosed
	}
	if err != nil {
		c.discard()
		stage := classifyDialError(dialCtx, reached, elapsed >= cl.config.DialTimeout, err)
		cl.metrics.dialFailed(stage)
		logger.Warn().Err(err).Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("Dial failed")
		return nil, &DialError{Peer: target.Peer, Addr: target.Addr, Stage: stage, Err: err}
	}

	c.establish(nc, elapsed)
	cl.metrics.dialSucceeded()
	logger.Info().
		Str("remote", nc.RemoteMultiaddr().String()).
		Str("security", string(nc.ConnState().Security)).
		Str("muxer", string(nc.ConnState().StreamMultiplexer)).
		Dur("elapsed", elapsed).
		Msg("Connected to peer")

	// The link may have dropped between DialPeer and establish, before the
	// notifier could match it to c.
	if nc.IsClosed() {
		c.fail(ErrConnectionClosed)
	}
	return c, nil
}

// reserve registers a pending Connection for target.Peer, or returns the
// established one.
func (cl *Client) reserve(target DialTarget) (*Connection, bool, error) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.closed {
		return nil, false, ErrClientClosed
	}
	if c, ok := cl.conns[target.Peer]; ok && !c.IsClosed() {
		if c.isEstablished() {
			return c, true, nil
		}
		return nil, false, fmt.Errorf("dial %s: %w", target.Peer, ErrDialInProgress)
	}
	c := newConnection(cl, target)
	cl.conns[target.Peer] = c
	return c, false, nil
}

// classifyDialError maps a DialPeer failure to the stage it happened at.
// Running out of time wins over any stage, since the swarm's own dial
// timer can fail the dial before ctx reports expiry.
func classifyDialError(ctx context.Context, reached dialProgress, overran bool, err error) DialStage {
	if overran || isDeadline(ctx, err) {
		return StageTimeout
	}

	var mismatch sec.ErrPeerIDMismatch
	msg := strings.ToLower(err.Error())
	switch {
	case errors.As(err, &mismatch), strings.Contains(msg, "peer id mismatch"):
		return StageIdentity
	case reached >= progressSecured, strings.Contains(msg, "failed to negotiate stream multiplexer"):
		return StageMuxer
	case strings.Contains(msg, "failed to negotiate security protocol"):
		return StageSecurity
	default:
		return StageTransport
	}
}

// isDeadline reports whether err (or ctx) signals an expired deadline.
func isDeadline(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout())
}
