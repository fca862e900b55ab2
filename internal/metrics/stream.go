// SPDX-License-Identifier: EPL-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "callbacks_total",
		Help:      "User callback invocations per stream",
	}, []string{"stream_id"})

	streamXRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "xruns_total",
		Help:      "Input overruns and output underruns reported by the driver",
	}, []string{"stream_id"})

	streamDrains = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "drains_total",
		Help:      "Drains that reached the quiesced threshold",
	}, []string{"stream_id"})

	streamProtocolViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "protocol_violations_total",
		Help:      "Driver callbacks received after the stream was closed",
	}, []string{"stream_id"})

	streamCallbackPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "callback_panics_total",
		Help:      "User callback panics recovered and replaced with silence",
	}, []string{"stream_id"})

	streamConversionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "conversion_errors_total",
		Help:      "Periods where sample conversion failed and silence was used",
	}, []string{"stream_id"})

	streamStopTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "stop_tasks_total",
		Help:      "Stop sequences handed off from the callback goroutine",
	}, []string{"stream_id"})

	streamState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "audstream",
		Subsystem: "stream",
		Name:      "state",
		Help:      "Current stream state (0 stopped, 1 running, 2 stopping, 3 closed)",
	}, []string{"stream_id"})
)

// Stream holds the per-stream metric children. Resolving them once keeps
// label lookups off the real-time path.
type Stream struct {
	id string

	Callbacks          prometheus.Counter
	XRuns              prometheus.Counter
	Drains             prometheus.Counter
	ProtocolViolations prometheus.Counter
	CallbackPanics     prometheus.Counter
	ConversionErrors   prometheus.Counter
	StopTasks          prometheus.Counter
	State              prometheus.Gauge
}

// ForStream resolves the metric children labelled with id.
func ForStream(id string) *Stream {
	return &Stream{
		id:                 id,
		Callbacks:          streamCallbacks.WithLabelValues(id),
		XRuns:              streamXRuns.WithLabelValues(id),
		Drains:             streamDrains.WithLabelValues(id),
		ProtocolViolations: streamProtocolViolations.WithLabelValues(id),
		CallbackPanics:     streamCallbackPanics.WithLabelValues(id),
		ConversionErrors:   streamConversionErrors.WithLabelValues(id),
		StopTasks:          streamStopTasks.WithLabelValues(id),
		State:              streamState.WithLabelValues(id),
	}
}

// Delete drops every series of the stream.
func (s *Stream) Delete() {
	streamCallbacks.DeleteLabelValues(s.id)
	streamXRuns.DeleteLabelValues(s.id)
	streamDrains.DeleteLabelValues(s.id)
	streamProtocolViolations.DeleteLabelValues(s.id)
	streamCallbackPanics.DeleteLabelValues(s.id)
	streamConversionErrors.DeleteLabelValues(s.id)
	streamStopTasks.DeleteLabelValues(s.id)
	streamState.DeleteLabelValues(s.id)
}
