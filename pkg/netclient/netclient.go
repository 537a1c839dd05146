// Package netclient is the public entry point to the peer client. A host
// application creates one Network per session and passes it to whatever
// needs to reach the remote peer; nothing in the client is process-global.
package netclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/peerprobe/internal/identity"
	klog "github.com/Klingon-tech/peerprobe/internal/log"
	"github.com/Klingon-tech/peerprobe/internal/p2p"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Re-exported client types.
type (
	DialTarget = p2p.DialTarget
	Connection = p2p.Connection
	Event      = p2p.Event
	EventKind  = p2p.EventKind

	ConnectionEstablished = p2p.ConnectionEstablished
	ProbeCompleted        = p2p.ProbeCompleted
	NegotiationRejected   = p2p.NegotiationRejected
	ConnectionFailed      = p2p.ConnectionFailed

	AddressError             = p2p.AddressError
	DialError                = p2p.DialError
	ProbeError               = p2p.ProbeError
	UnsupportedProtocolError = p2p.UnsupportedProtocolError
)

// Event kinds.
const (
	KindConnectionEstablished = p2p.KindConnectionEstablished
	KindProbeCompleted        = p2p.KindProbeCompleted
	KindNegotiationRejected   = p2p.KindNegotiationRejected
	KindConnectionFailed      = p2p.KindConnectionFailed
)

// ProbeProtocol is the liveness protocol spoken by Probe.
const ProbeProtocol = p2p.ProbeProtocol

// Sentinel errors, usable with errors.Is.
var (
	ErrInvalidAddress    = p2p.ErrInvalidAddress
	ErrDialFailed        = p2p.ErrDialFailed
	ErrDialTimeout       = p2p.ErrDialTimeout
	ErrDialInProgress    = p2p.ErrDialInProgress
	ErrDialSelf          = p2p.ErrDialSelf
	ErrProbeTimeout      = p2p.ErrProbeTimeout
	ErrProbeMismatch     = p2p.ErrProbeMismatch
	ErrProbeStreamFailed = p2p.ErrProbeStreamFailed
	ErrConnectionClosed  = p2p.ErrConnectionClosed
	ErrClientClosed      = p2p.ErrClientClosed
)

// Network is the capability handle over one peer client session.
type Network interface {
	// ID returns the local peer identity.
	ID() peer.ID
	// Resolve parses and validates a dial address.
	Resolve(addr string) (DialTarget, error)
	// Connect dials target and returns the established connection.
	Connect(ctx context.Context, target DialTarget) (*Connection, error)
	// Probe measures one round trip over the ping protocol.
	Probe(ctx context.Context, c *Connection) (time.Duration, error)
	// Request sends payload on a fresh stream for proto and returns the
	// full response.
	Request(ctx context.Context, c *Connection, proto protocol.ID, payload []byte) ([]byte, error)
	// Close tears down every connection and the local host.
	Close() error
}

var _ Network = (*p2p.Client)(nil)

// Options configures New.
type Options struct {
	// Identity
	KeyType      string // ed25519 (default) or secp256k1
	Seed         string // derive a stable identity from this seed
	IdentityFile string // load or create a persisted key
	Passphrase   []byte // encrypts IdentityFile

	ListenAddrs  []string
	DialTimeout  time.Duration
	ProbeTimeout time.Duration

	Registerer prometheus.Registerer
	Logger     *zerolog.Logger
}

// New creates a Network with its own libp2p host.
func New(opts Options) (Network, error) {
	priv, origin, err := identity.New(identity.Options{
		KeyType:    opts.KeyType,
		Seed:       opts.Seed,
		File:       opts.IdentityFile,
		Passphrase: opts.Passphrase,
	})
	if err != nil {
		return nil, fmt.Errorf("local identity: %w", err)
	}

	logger := klog.P2P
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	ev := logger.Info().
		Str("type", identity.KeyType(priv)).
		Str("origin", string(origin))
	if opts.IdentityFile != "" {
		ev = ev.Str("file", opts.IdentityFile).Bool("encrypted", len(opts.Passphrase) > 0)
	}
	ev.Msg("Local identity ready")

	cl, err := p2p.New(p2p.Config{
		Identity:     priv,
		ListenAddrs:  opts.ListenAddrs,
		DialTimeout:  opts.DialTimeout,
		ProbeTimeout: opts.ProbeTimeout,
		Registerer:   opts.Registerer,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return cl, nil
}

// Ping resolves addr, connects, probes once and closes the connection.
func Ping(ctx context.Context, n Network, addr string) (time.Duration, error) {
	target, err := n.Resolve(addr)
	if err != nil {
		return 0, err
	}
	c, err := n.Connect(ctx, target)
	if err != nil {
		return 0, err
	}
	rtt, err := n.Probe(ctx, c)
	return rtt, errors.Join(err, c.Close())
}
