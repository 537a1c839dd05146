package p2p

import (
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// networkProtocols are the accepted first segments of a dial address.
var networkProtocols = map[string]bool{
	"ip4":  true,
	"ip6":  true,
	"dns":  true,
	"dns4": true,
	"dns6": true,
}

// transportStacks are the accepted segment sequences after the network
// segment, joined by "/".
var transportStacks = map[string]bool{
	"tcp":            true,
	"tcp/ws":         true,
	"tcp/wss":        true,
	"tcp/tls/ws":     true,
	"tcp/tls/sni/ws": true,
	"udp/quic-v1":    true,
}

// DialTarget is a parsed dial address: where to reach a peer and which
// identity it must prove.
type DialTarget struct {
	Peer      peer.ID
	Addr      ma.Multiaddr // transport part, without /p2p
	Transport []string     // protocol names of Addr, e.g. ["dns4", "tcp"]
	Host      string       // IP address or DNS name
}

// Resolve parses a multiaddress of the form
// /<ip4|ip6|dns|dns4|dns6>/<host>/<transport...>/p2p/<peer-id> into a
// DialTarget. It performs no I/O; DNS names are resolved when dialing.
func Resolve(addr string) (DialTarget, error) {
	s := strings.TrimSpace(addr)
	if s == "" {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "empty address"}
	}

	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "malformed multiaddr", Err: err}
	}

	protos := m.Protocols()
	last := len(protos) - 1
	if last < 0 || protos[last].Code != ma.P_P2P {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "missing trailing /p2p/<peer-id> component"}
	}
	for _, p := range protos[:last] {
		switch p.Code {
		case ma.P_P2P:
			return DialTarget{}, &AddressError{Addr: addr, Reason: "more than one /p2p component"}
		case ma.P_CIRCUIT:
			return DialTarget{}, &AddressError{Addr: addr, Reason: "relayed addresses are not supported"}
		}
	}

	info, err := peer.AddrInfoFromP2pAddr(m)
	if err != nil {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "invalid peer identity", Err: err}
	}
	if len(info.Addrs) == 0 {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "missing transport locator"}
	}

	transport := info.Addrs[0]
	tprotos := transport.Protocols()
	names := make([]string, len(tprotos))
	for i, p := range tprotos {
		names[i] = p.Name
	}
	if !networkProtocols[names[0]] {
		return DialTarget{}, &AddressError{Addr: addr, Reason: fmt.Sprintf("unsupported network %q", names[0])}
	}
	stack := strings.Join(names[1:], "/")
	if !transportStacks[stack] {
		return DialTarget{}, &AddressError{Addr: addr, Reason: fmt.Sprintf("unsupported transport %q", stack)}
	}

	host, err := transport.ValueForProtocol(tprotos[0].Code)
	if err != nil {
		return DialTarget{}, &AddressError{Addr: addr, Reason: "missing host", Err: err}
	}

	return DialTarget{
		Peer:      info.ID,
		Addr:      transport,
		Transport: names,
		Host:      host,
	}, nil
}

// IsDNS reports whether the target host is a DNS name.
func (t DialTarget) IsDNS() bool {
	return len(t.Transport) > 0 && strings.HasPrefix(t.Transport[0], "dns")
}

// AddrInfo returns the target as a libp2p AddrInfo.
func (t DialTarget) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: t.Peer, Addrs: []ma.Multiaddr{t.Addr}}
}

// Equal reports whether two targets describe the same peer at the same
// address.
func (t DialTarget) Equal(o DialTarget) bool {
	if t.Peer != o.Peer || t.Host != o.Host || len(t.Transport) != len(o.Transport) {
		return false
	}
	for i := range t.Transport {
		if t.Transport[i] != o.Transport[i] {
			return false
		}
	}
	if t.Addr == nil || o.Addr == nil {
		return t.Addr == nil && o.Addr == nil
	}
	return t.Addr.Equal(o.Addr)
}

// String returns the full multiaddress including the peer identity.
func (t DialTarget) String() string {
	if t.Addr == nil {
		return "/p2p/" + t.Peer.String()
	}
	return t.Addr.String() + "/p2p/" + t.Peer.String()
}
