package p2p

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
)

// Sentinel errors for errors.Is checks.
var (
	ErrInvalidAddress    = errors.New("invalid address")
	ErrDialFailed        = errors.New("dial failed")
	ErrDialTimeout       = errors.New("dial timed out")
	ErrDialInProgress    = errors.New("dial already in progress")
	ErrDialSelf          = errors.New("cannot dial self")
	ErrProbeTimeout      = errors.New("probe timed out")
	ErrProbeMismatch     = errors.New("probe payload mismatch")
	ErrProbeStreamFailed = errors.New("probe stream failed")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrClientClosed      = errors.New("client closed")
)

// AddressError reports an address string that cannot be dialed.
type AddressError struct {
	Addr   string
	Reason string
	Err    error
}

func (e *AddressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid address %q: %s: %v", e.Addr, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid address %q: %s", e.Addr, e.Reason)
}

func (e *AddressError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidAddress}
	}
	return []error{ErrInvalidAddress, e.Err}
}

// DialStage names the connection establishment step a dial failed at.
type DialStage string

const (
	StageTransport DialStage = "transport" // socket could not be established
	StageIdentity  DialStage = "identity"  // remote proved a different peer ID
	StageSecurity  DialStage = "security"  // security handshake rejected
	StageMuxer     DialStage = "muxer"     // stream multiplexer negotiation failed
	StageTimeout   DialStage = "timeout"   // deadline hit before all stages completed
)

// DialError reports a failed Connect. Stage tells callers whether the peer
// was unreachable, proved the wrong identity, or failed negotiation.
type DialError struct {
	Peer  peer.ID
	Addr  ma.Multiaddr
	Stage DialStage
	Err   error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s at %s failed (%s): %v", e.Peer, e.Addr, e.Stage, e.Err)
}

func (e *DialError) Unwrap() []error {
	if e.Stage == StageTimeout {
		return []error{ErrDialTimeout, e.Err}
	}
	return []error{ErrDialFailed, e.Err}
}

// ProbeFailure classifies a failed probe.
type ProbeFailure string

const (
	ProbeTimeout      ProbeFailure = "timeout"       // no echo within the probe timeout
	ProbeMismatch     ProbeFailure = "mismatch"      // echo differed from the payload
	ProbeStreamFailed ProbeFailure = "stream_failed" // stream or connection went away
)

// ProbeError reports a failed liveness probe. The connection stays usable
// unless Err wraps ErrConnectionClosed.
type ProbeError struct {
	Peer      peer.ID
	RequestID uuid.UUID
	Kind      ProbeFailure
	Err       error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s to %s failed (%s): %v", shortUUID(e.RequestID), e.Peer, e.Kind, e.Err)
}

func (e *ProbeError) Unwrap() []error {
	var sentinel error
	switch e.Kind {
	case ProbeTimeout:
		sentinel = ErrProbeTimeout
	case ProbeMismatch:
		sentinel = ErrProbeMismatch
	default:
		sentinel = ErrProbeStreamFailed
	}
	return []error{sentinel, e.Err}
}

// UnsupportedProtocolError reports that the remote peer refused every
// protocol we proposed on an outbound stream.
type UnsupportedProtocolError struct {
	Peer      peer.ID
	Protocols []protocol.ID
}

func (e *UnsupportedProtocolError) Error() string {
	names := make([]string, len(e.Protocols))
	for i, p := range e.Protocols {
		names[i] = string(p)
	}
	return fmt.Sprintf("peer %s supports none of the requested protocols: %s", e.Peer, strings.Join(names, ", "))
}

func shortUUID(id uuid.UUID) string {
	return id.String()[:8]
}
