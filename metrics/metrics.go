package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localspot",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "localspot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"method", "route"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "localspot",
		Name:      "active_streams",
		Help:      "Number of audio transfers currently in progress.",
	})

	StreamedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localspot",
		Name:      "streamed_bytes_total",
		Help:      "Total audio bytes written to clients.",
	})

	StreamOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "localspot",
		Name:      "stream_outcomes_total",
		Help:      "Stream requests by outcome (full, partial, not_found, unsatisfiable, aborted, io_error).",
	}, []string{"outcome"})

	LibraryScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "localspot",
		Name:      "library_scan_duration_seconds",
		Help:      "Duration of full library scans in seconds.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60},
	})

	LibraryTracks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "localspot",
		Name:      "library_tracks",
		Help:      "Number of tracks in the most recent library snapshot.",
	})

	LibraryInvalidationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "localspot",
		Name:      "library_invalidations_total",
		Help:      "Total number of library index invalidations.",
	})
)

// Register adds every collector to reg. openFiles reports descriptors currently
// held by stream sessions.
func Register(reg prometheus.Registerer, openFiles func() int64) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		StreamedBytesTotal,
		StreamOutcomesTotal,
		LibraryScanDuration,
		LibraryTracks,
		LibraryInvalidationsTotal,
	)
	if openFiles != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "localspot",
			Name:      "stream_open_files",
			Help:      "File descriptors currently held by stream sessions.",
		}, func() float64 { return float64(openFiles()) }))
	}
}
