package p2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
)

// Liveness probe protocol constants.
const (
	// ProbeProtocol is the stream protocol ID of the liveness probe.
	ProbeProtocol = protocol.ID(ping.ID)

	// ProbeSize is the payload size of one probe, in bytes.
	ProbeSize = ping.PingSize
)

// Default timings.
const (
	// defaultDialTimeout bounds transport, security and muxer negotiation.
	defaultDialTimeout = 5 * time.Second

	// defaultProbeTimeout bounds one probe round trip.
	defaultProbeTimeout = 5 * time.Second

	// negotiationTimeout bounds inbound multistream negotiation.
	negotiationTimeout = 10 * time.Second

	// pingIdleTimeout closes an inbound probe stream the remote stopped using.
	pingIdleTimeout = time.Minute

	// requestTimeout bounds a generic request when the caller set no deadline.
	requestTimeout = 10 * time.Second

	// maxResponseBytes limits a generic request's response size.
	maxResponseBytes = 1 << 20
)
