package p2p

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

// startRemote starts a plain libp2p host listening on loopback TCP.
func startRemote(t *testing.T) host.Host {
	t.Helper()
	h, err := libp2p.New(
		libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"),
		libp2p.DisableMetrics(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

// startClient starts a Client with short timeouts and a private registry.
func startClient(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		DialTimeout:  3 * time.Second,
		ProbeTimeout: 2 * time.Second,
		Registerer:   prometheus.NewRegistry(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	cl, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { cl.Close() })
	return cl
}

// targetOf builds a DialTarget for h's first address.
func targetOf(t *testing.T, h host.Host) DialTarget {
	t.Helper()
	require.NotEmpty(t, h.Addrs())
	target, err := Resolve(fmt.Sprintf("%s/p2p/%s", h.Addrs()[0], h.ID()))
	require.NoError(t, err)
	return target
}

// connect dials remote and returns the established connection once the
// remote has registered its side too, so it can open streams back.
func connect(t *testing.T, cl *Client, remote host.Host) *Connection {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cl.Connect(ctx, targetOf(t, remote))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(remote.Network().ConnsToPeer(cl.ID())) > 0
	}, 5*time.Second, 10*time.Millisecond, "remote never registered the connection")
	return c
}

// isIdentifyNoise reports whether ev is the refusal of a stock libp2p
// host's automatic identify exchange.
func isIdentifyNoise(ev Event) bool {
	r, ok := ev.(NegotiationRejected)
	return ok && strings.HasPrefix(string(r.Protocol), "/ipfs/id/")
}

// nextEvent waits for the next event on c, skipping identify refusals.
func nextEvent(t *testing.T, c *Connection) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			require.True(t, ok, "event stream closed")
			if isIdentifyNoise(ev) {
				continue
			}
			return ev
		case <-timeout:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

// expectNoEvent asserts that nothing but identify refusals arrives on c
// for d.
func expectNoEvent(t *testing.T, c *Connection, d time.Duration) {
	t.Helper()
	timeout := time.After(d)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				return
			}
			if !isIdentifyNoise(ev) {
				t.Fatalf("unexpected event %s", ev.Kind())
			}
		case <-timeout:
			return
		}
	}
}

// collect drains c's events until the stream ends or ctx is done,
// skipping identify refusals.
func collect(ctx context.Context, c *Connection) []Event {
	var out []Event
	for ev := range c.All(ctx) {
		if !isIdentifyNoise(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// blackhole makes remote accept ping streams and never answer.
func blackhole(remote host.Host) {
	remote.SetStreamHandler(ProbeProtocol, func(s network.Stream) {
		io.Copy(io.Discard, s)
	})
}

// echoWrong makes remote answer ping with bytes other than the payload.
func echoWrong(remote host.Host) {
	remote.SetStreamHandler(ProbeProtocol, func(s network.Stream) {
		buf := make([]byte, ProbeSize)
		if _, err := io.ReadFull(s, buf); err != nil {
			s.Reset()
			return
		}
		for i := range buf {
			buf[i] ^= 0xff
		}
		s.Write(buf)
		s.Close()
	})
}
