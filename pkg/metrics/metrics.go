// Package metrics exposes Prometheus collectors for the call-session core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsPlaced counts outbound call attempts that passed validation.
	CallsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echodesk_calls_placed_total",
		Help: "Outbound calls placed through the signaling device",
	})

	// CallsAnswered counts incoming calls answered by the operator.
	CallsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echodesk_calls_answered_total",
		Help: "Incoming calls answered by the operator",
	})

	// CallsLogged counts completed sessions submitted to the call log,
	// partitioned by final status.
	CallsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echodesk_calls_logged_total",
		Help: "Call log records submitted, by final call status",
	}, []string{"status"})

	// CallLogPersistFailures counts submissions the backend rejected.
	CallLogPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echodesk_call_log_persist_failures_total",
		Help: "Call log submissions that failed and were not retried",
	})

	// AnalysisPollTicks counts background refreshes of the call log list
	// while analysis fields are pending.
	AnalysisPollTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echodesk_analysis_poll_ticks_total",
		Help: "Background call log refreshes driven by pending analysis",
	})

	// RecordingResolutions counts per-record resolution outcomes.
	RecordingResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echodesk_recording_resolutions_total",
		Help: "Recording resolution attempts by terminal state",
	}, []string{"outcome"})

	// CallPhase reports the current phase as an enum gauge (0 idle,
	// 1 ringing, 2 incoming, 3 connected).
	CallPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echodesk_call_phase",
		Help: "Current call phase of the console surface",
	})

	// MeterVolume reports the smoothed microphone volume level (0..1).
	MeterVolume = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "echodesk_meter_volume_level",
		Help: "Smoothed microphone volume level",
	})
)
