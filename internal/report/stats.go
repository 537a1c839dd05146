package report

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/Klingon-tech/peerprobe/internal/p2p"
)

// Stats accumulates probe outcomes for a session summary.
type Stats struct {
	mu       sync.Mutex
	sent     int
	failures map[p2p.ProbeFailure]int
	rtts     []time.Duration
	rejected int
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{failures: make(map[p2p.ProbeFailure]int)}
}

// Observe records a probe result. A nil err records a success.
func (s *Stats) Observe(rtt time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if err == nil {
		s.rtts = append(s.rtts, rtt)
		return
	}
	kind := p2p.ProbeStreamFailed
	var pe *p2p.ProbeError
	if errors.As(err, &pe) {
		kind = pe.Kind
	}
	s.failures[kind]++
}

// ObserveEvent counts inbound refusals.
func (s *Stats) ObserveEvent(ev p2p.Event) {
	if ev.Kind() != p2p.KindNegotiationRejected {
		return
	}
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
}

// Received returns the number of successful probes.
func (s *Stats) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rtts)
}

// Summary renders a ping(8)-style session summary.
func (s *Stats) Summary(target string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s probe statistics ---\n", target)
	loss := 0.0
	if s.sent > 0 {
		loss = 100 * float64(s.sent-len(s.rtts)) / float64(s.sent)
	}
	fmt.Fprintf(&b, "%d probes sent, %d received, %.0f%% loss", s.sent, len(s.rtts), loss)
	for _, kind := range []p2p.ProbeFailure{p2p.ProbeTimeout, p2p.ProbeMismatch, p2p.ProbeStreamFailed} {
		if n := s.failures[kind]; n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, kind)
		}
	}
	if s.rejected > 0 {
		fmt.Fprintf(&b, ", %d inbound refused", s.rejected)
	}
	b.WriteString("\n")

	if len(s.rtts) > 0 {
		lo, hi, sum := time.Duration(math.MaxInt64), time.Duration(0), time.Duration(0)
		for _, r := range s.rtts {
			lo = min(lo, r)
			hi = max(hi, r)
			sum += r
		}
		avg := sum / time.Duration(len(s.rtts))
		fmt.Fprintf(&b, "rtt min/avg/max = %s/%s/%s\n", Millis(lo), Millis(avg), Millis(hi))
	}
	return b.String()
}
