package p2p

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeerID = "12D3KooWRH71QRJe5vrMp6zZXoH4K7z5MDSWwTXXPriG9dK8HQXk"

func TestResolve_Valid(t *testing.T) {
	tests := []struct {
		addr      string
		host      string
		transport []string
		dns       bool
	}{
		{"/ip4/127.0.0.1/tcp/4001/p2p/" + testPeerID, "127.0.0.1", []string{"ip4", "tcp"}, false},
		{"/ip6/::1/tcp/4001/p2p/" + testPeerID, "::1", []string{"ip6", "tcp"}, false},
		{"/dns4/example.com/tcp/4001/p2p/" + testPeerID, "example.com", []string{"dns4", "tcp"}, true},
		{"/dns/example.com/tcp/443/wss/p2p/" + testPeerID, "example.com", []string{"dns", "tcp", "wss"}, true},
		{"/ip4/10.0.0.1/tcp/80/ws/p2p/" + testPeerID, "10.0.0.1", []string{"ip4", "tcp", "ws"}, false},
		{"/ip4/10.0.0.1/udp/4001/quic-v1/p2p/" + testPeerID, "10.0.0.1", []string{"ip4", "udp", "quic-v1"}, false},
		{"  /ip4/127.0.0.1/tcp/1/p2p/" + testPeerID + "\n", "127.0.0.1", []string{"ip4", "tcp"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			target, err := Resolve(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, testPeerID, target.Peer.String())
			assert.Equal(t, tt.host, target.Host)
			assert.Equal(t, tt.transport, target.Transport)
			assert.Equal(t, tt.dns, target.IsDNS())
			assert.NotContains(t, target.Addr.String(), "/p2p/")
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	addr := "/dns4/example.com/tcp/4001/p2p/" + testPeerID
	a, err := Resolve(addr)
	require.NoError(t, err)
	b, err := Resolve(addr)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, addr, a.String())

	c, err := Resolve("/dns4/example.com/tcp/4002/p2p/" + testPeerID)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestResolve_Invalid(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"not a multiaddr", "example.com:4001"},
		{"unknown protocol", "/ip4/127.0.0.1/bogus/1/p2p/" + testPeerID},
		{"missing identity", "/ip4/127.0.0.1/tcp/4001"},
		{"identity only", "/p2p/" + testPeerID},
		{"bad peer id", "/ip4/127.0.0.1/tcp/4001/p2p/notapeerid"},
		{"trailing component", "/ip4/127.0.0.1/tcp/4001/p2p/" + testPeerID + "/tcp/1"},
		{"relay", "/ip4/127.0.0.1/tcp/4001/p2p/" + testPeerID + "/p2p-circuit/p2p/" + testPeerID},
		{"unsupported network", "/unix/tmp/sock/p2p/" + testPeerID},
		{"udp without quic", "/ip4/127.0.0.1/udp/4001/p2p/" + testPeerID},
		{"no transport", "/ip4/127.0.0.1/p2p/" + testPeerID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.addr)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAddress), "got %v", err)
			var ae *AddressError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, tt.addr, ae.Addr)
		})
	}
}

func TestDialTarget_AddrInfo(t *testing.T) {
	target, err := Resolve("/ip4/127.0.0.1/tcp/4001/p2p/" + testPeerID)
	require.NoError(t, err)
	info := target.AddrInfo()
	assert.Equal(t, target.Peer, info.ID)
	require.Len(t, info.Addrs, 1)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/4001", info.Addrs[0].String())
}
