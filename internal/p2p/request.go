package p2p

import (
	"context"
	"fmt"
	"io"

	"github.com/libp2p/go-libp2p/core/protocol"
)

// Request opens a stream to the connection's peer on proto, writes
// payload, half-closes and returns everything the peer sends back, up to
// 1 MiB. It fails with an UnsupportedProtocolError if the peer refuses
// proto.
func (cl *Client) Request(ctx context.Context, c *Connection, proto protocol.ID, payload []byte) ([]byte, error) {
	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	s, err := c.newStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s stream: %w", proto, err)
	}
	defer s.Close()
	stop := context.AfterFunc(ctx, func() { s.Reset() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.SetDeadline(deadline)
	}

	if err := selectProtocol(s, proto); err != nil {
		s.Reset()
		return nil, err
	}
	if len(payload) > 0 {
		if _, err := s.Write(payload); err != nil {
			s.Reset()
			return nil, fmt.Errorf("write %s request: %w", proto, err)
		}
	}
	// Signal we're done writing.
	_ = s.CloseWrite()

	resp, err := io.ReadAll(io.LimitReader(s, maxResponseBytes+1))
	if err != nil {
		s.Reset()
		return nil, fmt.Errorf("read %s response: %w", proto, err)
	}
	if len(resp) > maxResponseBytes {
		s.Reset()
		return nil, fmt.Errorf("%s response exceeds %d bytes", proto, maxResponseBytes)
	}
	cl.log.Debug().
		Str("peer", c.RemotePeer().String()).
		Str("protocol", string(proto)).
		Int("bytes", len(resp)).
		Msg("Request completed")
	return resp, nil
}
