// Package p2p implements a minimal libp2p peer client: it dials a single
// remote peer, measures liveness over the ping protocol and reports
// inbound protocol negotiations it refuses.
package p2p

import (
	"fmt"
	"sync"
	"time"

	klog "github.com/Klingon-tech/peerprobe/internal/log"
	"github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	libp2ptls "github.com/libp2p/go-libp2p/p2p/security/tls"
	libp2pquic "github.com/libp2p/go-libp2p/p2p/transport/quic"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/libp2p/go-libp2p/p2p/transport/websocket"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Config holds peer client configuration.
type Config struct {
	Identity     libp2pcrypto.PrivKey  // nil = fresh ed25519 key
	ListenAddrs  []string              // empty = not dialable
	DialTimeout  time.Duration         // 0 = 5s
	ProbeTimeout time.Duration         // 0 = 5s
	Registerer   prometheus.Registerer // nil = metrics not exported
	Logger       *zerolog.Logger       // nil = internal/log component loggers
}

// Client is a libp2p host restricted to dialing peers, probing them and
// refusing everything else they ask of us.
type Client struct {
	host     host.Host
	config   Config
	gater    *stageGater
	notify   *connNotifier
	dispatch *dispatcher
	metrics  *Metrics

	log         zerolog.Logger
	probeLog    zerolog.Logger
	dispatchLog zerolog.Logger

	mu     sync.Mutex
	conns  map[peer.ID]*Connection
	closed bool
}

// New creates the libp2p host and starts accepting inbound streams on the
// client's connections.
func New(cfg Config) (*Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	metrics, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	cl := &Client{
		config:      cfg,
		gater:       newStageGater(),
		metrics:     metrics,
		log:         klog.P2P,
		probeLog:    klog.Probe,
		dispatchLog: klog.Dispatch,
		conns:       make(map[peer.ID]*Connection),
	}
	if cfg.Logger != nil {
		cl.log = cfg.Logger.With().Str("subsystem", "client").Logger()
		cl.probeLog = cfg.Logger.With().Str("subsystem", "probe").Logger()
		cl.dispatchLog = cfg.Logger.With().Str("subsystem", "dispatch").Logger()
	}

	h, err := libp2p.New(cl.hostOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create libp2p host: %w", err)
	}
	cl.host = h

	// Every inbound stream goes through our dispatcher instead of the
	// host's protocol router.
	cl.dispatch = newDispatcher(cl)
	h.Network().SetStreamHandler(cl.dispatch.handleStream)

	cl.notify = &connNotifier{client: cl}
	h.Network().Notify(cl.notify)

	cl.log.Info().
		Str("id", h.ID().String()).
		Int("listen", len(h.Addrs())).
		Msg("Peer client started")
	return cl, nil
}

func (cl *Client) hostOptions() []libp2p.Option {
	cfg := cl.config
	opts := []libp2p.Option{
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Transport(libp2pquic.NewTransport),
		libp2p.Transport(websocket.New),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Security(libp2ptls.ID, libp2ptls.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionGater(cl.gater),
		libp2p.WithDialTimeout(cfg.DialTimeout),
		libp2p.Ping(false),
		libp2p.DisableRelay(),
	}
	if cfg.Identity != nil {
		opts = append(opts, libp2p.Identity(cfg.Identity))
	}
	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}
	if cfg.Registerer != nil {
		opts = append(opts, libp2p.PrometheusRegisterer(cfg.Registerer))
	} else {
		opts = append(opts, libp2p.DisableMetrics())
	}
	return opts
}

// Close closes every connection and shuts the host down. Event streams of
// open connections end without delivering queued events.
func (cl *Client) Close() error {
	cl.mu.Lock()
	if cl.closed {
		cl.mu.Unlock()
		return nil
	}
	cl.closed = true
	conns := make([]*Connection, 0, len(cl.conns))
	for _, c := range cl.conns {
		conns = append(conns, c)
	}
	cl.mu.Unlock()

	var err error
	for _, c := range conns {
		err = multierr.Append(err, c.Close())
		c.events.drop()
	}
	err = multierr.Append(err, cl.host.Close())
	cl.log.Info().Msg("Peer client stopped")
	return err
}

// ID returns the local peer identity.
func (cl *Client) ID() peer.ID {
	return cl.host.ID()
}

// Addrs returns the addresses the client listens on, if any.
func (cl *Client) Addrs() []ma.Multiaddr {
	return cl.host.Addrs()
}

// Resolve parses a dial address. See Resolve.
func (cl *Client) Resolve(addr string) (DialTarget, error) {
	return Resolve(addr)
}

// Connection returns the open connection to p, if any.
func (cl *Client) Connection(p peer.ID) *Connection {
	c := cl.lookup(p)
	if c == nil || !c.isEstablished() || c.IsClosed() {
		return nil
	}
	return c
}

// SupportedProtocols returns the inbound protocols the client serves.
func (cl *Client) SupportedProtocols() []string {
	ids := cl.dispatch.supported()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func (cl *Client) lookup(p peer.ID) *Connection {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.conns[p]
}

// forget drops c from the connection table if it is still registered.
func (cl *Client) forget(c *Connection) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.conns[c.target.Peer] == c {
		delete(cl.conns, c.target.Peer)
	}
}
