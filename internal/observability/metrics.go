package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parcel_express"

var (
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_requests_total", Help: "Query cache lookups by kind and outcome (hit, miss, shared)"},
		[]string{"kind", "outcome"},
	)
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_invalidations_total", Help: "Cache invalidations by kind and source (local, bus)"},
		[]string{"kind", "source"},
	)
	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "mutations_total", Help: "Backend mutations by name and outcome"},
		[]string{"mutation", "outcome"},
	)
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Remote backend call latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "proof_uploads_total", Help: "Proof of delivery uploads by outcome"},
		[]string{"outcome"},
	)
	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "proof_upload_bytes",
		Help:      "Size of uploaded proof files",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
	})
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "live_connections", Help: "Open live update websocket connections"})
	EnquiriesTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "enquiries_total", Help: "Contact form enquiries received"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
