package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "uploads_accepted_total",
			Help: "Total number of accepted file uploads",
		},
	)

	UploadsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_rejected_total",
			Help: "Total number of rejected file uploads",
		},
		[]string{"reason"},
	)

	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upload_size_bytes",
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(2048, 4, 8),
		},
	)
)
