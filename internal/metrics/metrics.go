package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Terminal client metrics collectors
var (
	// Session Lifecycle

	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rterm_sessions_connected",
			Help: "Number of terminal sessions currently attached to a remote process",
		},
	)

	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rterm_connect_attempts_total",
			Help: "Total number of attach attempts",
		},
		[]string{"kind", "result"},
	)

	DisconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rterm_disconnects_total",
			Help: "Total number of session disconnects",
		},
		[]string{"reason"},
	)

	// Input Delivery

	InputChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rterm_input_chunks_total",
			Help: "Total number of input chunks delivered to remote processes",
		},
		[]string{"status"},
	)

	InputBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rterm_input_bytes_total",
			Help: "Total number of plaintext input bytes delivered",
		},
	)

	// Remote Operations

	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rterm_remote_calls_total",
			Help: "Total number of remote process calls",
		},
		[]string{"method", "status"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rterm_remote_call_duration_seconds",
			Help:    "Remote process call latency in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// Event Stream

	EventFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rterm_event_frames_total",
			Help: "Total number of event stream frames received",
		},
		[]string{"type"},
	)

	EventStreamReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rterm_event_stream_reconnects_total",
			Help: "Total number of event stream reconnects",
		},
	)
)

// Status returns the status label for an operation result.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
