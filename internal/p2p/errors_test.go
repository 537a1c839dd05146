package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/core/sec"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialError_Is(t *testing.T) {
	cause := errors.New("connection refused")
	addr := ma.StringCast("/ip4/127.0.0.1/tcp/1")

	e := &DialError{Peer: peer.ID("p"), Addr: addr, Stage: StageTransport, Err: cause}
	assert.True(t, errors.Is(e, ErrDialFailed))
	assert.True(t, errors.Is(e, cause))
	assert.False(t, errors.Is(e, ErrDialTimeout))
	assert.Contains(t, e.Error(), "transport")
	assert.Contains(t, e.Error(), "/ip4/127.0.0.1/tcp/1")

	timeout := &DialError{Peer: peer.ID("p"), Addr: addr, Stage: StageTimeout, Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(timeout, ErrDialTimeout))
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
	assert.False(t, errors.Is(timeout, ErrDialFailed))
}

func TestProbeError_Is(t *testing.T) {
	tests := []struct {
		kind ProbeFailure
		want error
	}{
		{ProbeTimeout, ErrProbeTimeout},
		{ProbeMismatch, ErrProbeMismatch},
		{ProbeStreamFailed, ErrProbeStreamFailed},
	}
	for _, tt := range tests {
		e := &ProbeError{Peer: peer.ID("p"), RequestID: uuid.New(), Kind: tt.kind, Err: ErrConnectionClosed}
		assert.True(t, errors.Is(e, tt.want), tt.kind)
		assert.True(t, errors.Is(e, ErrConnectionClosed), tt.kind)
		assert.Contains(t, e.Error(), string(tt.kind))
	}
}

func TestAddressError(t *testing.T) {
	e := &AddressError{Addr: "bogus", Reason: "malformed multiaddr", Err: errors.New("boom")}
	assert.True(t, errors.Is(e, ErrInvalidAddress))
	assert.Contains(t, e.Error(), `"bogus"`)
	assert.Contains(t, e.Error(), "boom")

	bare := &AddressError{Addr: "", Reason: "empty address"}
	assert.True(t, errors.Is(bare, ErrInvalidAddress))
	assert.Equal(t, `invalid address "": empty address`, bare.Error())
}

func TestUnsupportedProtocolError(t *testing.T) {
	e := &UnsupportedProtocolError{Peer: peer.ID("p"), Protocols: []protocol.ID{"/a/1", "/b/1"}}
	assert.Contains(t, e.Error(), "/a/1, /b/1")
}

func TestClassifyDialError(t *testing.T) {
	live := context.Background()
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-expired.Done()

	tests := []struct {
		name    string
		ctx     context.Context
		reached dialProgress
		overran bool
		err     error
		want    DialStage
	}{
		{"refused", live, progressDialing, false, errors.New("dial tcp: connection refused"), StageTransport},
		{"deadline", expired, progressDialing, false, errors.New("anything"), StageTimeout},
		{"mismatch type", live, progressDialing, false, sec.ErrPeerIDMismatch{Expected: "a", Actual: "b"}, StageIdentity},
		{"mismatch text", live, progressDialing, false, errors.New("failed to dial: peer id mismatch: expected a"), StageIdentity},
		{"muxer after secured", live, progressSecured, false, errors.New("eof"), StageMuxer},
		{"muxer text", live, progressDialing, false, errors.New("failed to negotiate stream multiplexer: eof"), StageMuxer},
		{"security text", live, progressDialing, false, errors.New("failed to negotiate security protocol: eof"), StageSecurity},
		{"wrapped deadline", live, progressDialing, false, fmt.Errorf("upgrade: %w", context.DeadlineExceeded), StageTimeout},
		{"io deadline", live, progressDialing, false, fmt.Errorf("read: %w", os.ErrDeadlineExceeded), StageTimeout},
		{"net timeout", live, progressDialing, false, &net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}, StageTimeout},
		{"stalled handshake overran", live, progressDialing, true, errors.New("failed to negotiate security protocol: all dials failed"), StageTimeout},
		{"overran after secured", live, progressSecured, true, errors.New("eof"), StageTimeout},
		{"handshake text alone", live, progressDialing, false, errors.New("remote closed during handshake"), StageTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyDialError(tt.ctx, tt.reached, tt.overran, tt.err))
		})
	}
}

func TestShortUUID(t *testing.T) {
	id := uuid.MustParse("0123abcd-0000-0000-0000-000000000000")
	require.Equal(t, "0123abcd", shortUUID(id))
}
