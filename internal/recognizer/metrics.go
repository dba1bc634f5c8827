package recognizer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_recognitions_total",
		Help: "Recognition attempts by outcome.",
	}, []string{"outcome"}) // matched, unmatched, no_face, error

	marksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance marks recorded.",
	})

	cacheRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_cache_rebuilt_identities_total",
		Help: "Identities re-extracted by staleness sweeps.",
	})

	recognizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_recognize_duration_seconds",
		Help:    "Wall time of one frame recognition.",
		Buckets: prometheus.DefBuckets,
	})
)
