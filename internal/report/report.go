// Package report renders connection events and probe results as
// human-readable lines.
package report

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	klog "github.com/Klingon-tech/peerprobe/internal/log"
	"github.com/Klingon-tech/peerprobe/internal/p2p"
)

// Line renders one event.
func Line(ev p2p.Event) string {
	peer := klog.ShortID(ev.Peer().String())
	switch e := ev.(type) {
	case p2p.ConnectionEstablished:
		return fmt.Sprintf("Connected to %s via %s in %s", peer, e.Addr, Millis(e.Elapsed))
	case p2p.ProbeCompleted:
		return fmt.Sprintf("Round-trip time to %s: %s", peer, Millis(e.RTT))
	case p2p.NegotiationRejected:
		return fmt.Sprintf("Peer %s requested unsupported protocol %s; stream refused, connection kept", peer, e.Protocol)
	case p2p.ConnectionFailed:
		return fmt.Sprintf("Connection to %s lost: %v", peer, e.Err)
	default:
		return fmt.Sprintf("Event %s from %s", ev.Kind(), peer)
	}
}

// Describe renders an operation error as a single line naming what failed.
func Describe(err error) string {
	var (
		ae  *p2p.AddressError
		de  *p2p.DialError
		pe  *p2p.ProbeError
		upe *p2p.UnsupportedProtocolError
	)
	switch {
	case errors.As(err, &ae):
		return fmt.Sprintf("Invalid address %q: %s", ae.Addr, ae.Reason)
	case errors.As(err, &de):
		return fmt.Sprintf("Dial %s failed at %s stage: %v", klog.ShortID(de.Peer.String()), de.Stage, de.Err)
	case errors.As(err, &upe) && errors.As(err, &pe):
		return fmt.Sprintf("Probe to %s failed: peer does not support %s", klog.ShortID(pe.Peer.String()), p2p.ProbeProtocol)
	case errors.As(err, &pe):
		return fmt.Sprintf("Probe to %s failed (%s): %v", klog.ShortID(pe.Peer.String()), pe.Kind, pe.Err)
	case errors.Is(err, p2p.ErrDialInProgress):
		return "A dial to this peer is already in progress"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// Millis formats d in milliseconds with microsecond precision.
func Millis(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
}

// Printer writes event lines to an io.Writer. It is safe for concurrent
// use.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Event writes the line for ev.
func (p *Printer) Event(ev p2p.Event) error {
	return p.Println(Line(ev))
}

// Error writes the line for err.
func (p *Printer) Error(err error) error {
	return p.Println(Describe(err))
}

// Println writes s followed by a newline.
func (p *Printer) Println(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.w, s)
	return err
}
