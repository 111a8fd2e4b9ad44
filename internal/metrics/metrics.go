// Package metrics exposes the note taker's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesIngested counts PCM frames accepted per room.
	FramesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetaker_audio_frames_total",
		Help: "Audio frames routed into a room's buffer.",
	}, []string{"room"})

	// BatchesFlushed counts mixed audio batches handed to transcription.
	BatchesFlushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetaker_audio_batches_total",
		Help: "Mixed audio batches flushed per room.",
	}, []string{"room"})

	// SummariesGenerated counts AI summaries by kind (interval, final).
	SummariesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notetaker_summaries_total",
		Help: "AI summaries generated, by kind.",
	}, []string{"kind"})

	// SessionsActive tracks currently active sessions.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notetaker_sessions_active",
		Help: "Sessions currently active.",
	})
)
