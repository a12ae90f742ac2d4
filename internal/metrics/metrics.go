// Package metrics exposes playback counters and gauges via Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Playback tracks delivery-side observations for one play session.
type Playback struct {
	Delivered   prometheus.Counter
	Undelivered prometheus.Counter
	Loaded      prometheus.Counter
	QueueDepth  prometheus.Gauge
	Rate        prometheus.Gauge
}

// NewPlayback builds and registers the playback collectors. Pass a fresh
// registry per session; registering twice on one registry panics by
// Prometheus convention.
func NewPlayback(reg prometheus.Registerer) *Playback {
	p := &Playback{
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_messages_delivered_total",
			Help: "Messages handed to the sink and accepted.",
		}),
		Undelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_messages_undelivered_total",
			Help: "Messages the sink had no destination for.",
		}),
		Loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "replay_messages_loaded_total",
			Help: "Messages read from storage into the read-ahead queue.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_read_ahead_queue_depth",
			Help: "Approximate occupancy of the read-ahead queue.",
		}),
		Rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "replay_playback_rate",
			Help: "Current playback rate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(p.Delivered, p.Undelivered, p.Loaded, p.QueueDepth, p.Rate)
	}
	return p
}

// NewNopPlayback returns unregistered collectors for callers that do not
// export metrics (tests, rewrite runs).
func NewNopPlayback() *Playback { return NewPlayback(nil) }
