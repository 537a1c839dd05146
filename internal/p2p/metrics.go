package p2p

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "peerprobe"

// Metrics holds the client's Prometheus collectors.
type Metrics struct {
	dials        *prometheus.CounterVec
	probes       *prometheus.CounterVec
	probeRTT     prometheus.Histogram
	negotiations *prometheus.CounterVec
}

// newMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dials_total",
			Help:      "Connection attempts by result (ok or failed stage).",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "probes_total",
			Help:      "Liveness probes by result (ok or failure kind).",
		}, []string{"result"}),
		probeRTT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "probe_rtt_seconds",
			Help:      "Round-trip time of successful liveness probes.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inbound_negotiations_total",
			Help:      "Inbound protocol negotiations by result (accepted or rejected).",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	var err error
	if m.dials, err = register(reg, m.dials); err != nil {
		return nil, err
	}
	if m.probes, err = register(reg, m.probes); err != nil {
		return nil, err
	}
	if m.probeRTT, err = register(reg, m.probeRTT); err != nil {
		return nil, err
	}
	if m.negotiations, err = register(reg, m.negotiations); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector registered by an
// earlier client.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) dialSucceeded() {
	m.dials.WithLabelValues("ok").Inc()
}

func (m *Metrics) dialFailed(stage DialStage) {
	m.dials.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) probeSucceeded(rtt float64) {
	m.probes.WithLabelValues("ok").Inc()
	m.probeRTT.Observe(rtt)
}

func (m *Metrics) probeFailed(kind ProbeFailure) {
	m.probes.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) negotiationAccepted() {
	m.negotiations.WithLabelValues("accepted").Inc()
}

func (m *Metrics) negotiationRejected() {
	m.negotiations.WithLabelValues("rejected").Inc()
}
