// Package metrics exposes the ambient observability the core doesn't itself
// require but a runnable station needs: active listener count, heartbeat
// desync, burst-buffer depth, and frame throughput, scraped over /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stationd",
		Name:      "active_listeners",
		Help:      "Number of listener table entries currently tracked by the station.",
	})

	HeartbeatDesyncSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stationd",
		Name:      "heartbeat_desync_seconds",
		Help:      "Reported desync (server minus client position) per heartbeat.",
		Buckets:   []float64{-5, -2, -1, -0.5, 0, 0.5, 1, 2, 3, 5, 10},
	})

	BurstBufferDepthSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "stationd",
		Name:      "burst_buffer_depth_seconds",
		Help:      "Seconds of audio currently held in the burst buffer.",
	})

	FramesProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stationd",
		Name:      "frames_produced_total",
		Help:      "Audio frames emitted by the Frame Producer.",
	})

	FramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "stationd",
		Name:      "frames_dropped_total",
		Help:      "Audio frames dropped for lagging fan-out subscribers.",
	})
)
