// Package metrics defines the Prometheus metrics exported by the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal counts completed and failed subtests.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_transfers_total",
			Help: "Number of subtests, by subtest kind and result.",
		},
		[]string{"subtest", "protocol", "result"},
	)

	// TransferBytesTotal counts payload bytes moved by subtests.
	TransferBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "speedtest_transfer_bytes_total",
			Help: "Payload bytes sent on download and received on upload.",
		},
		[]string{"subtest", "protocol"},
	)

	// UploadRate is the distribution of upload throughput computed by the
	// server, in Mb/s.
	UploadRate = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "speedtest_upload_rate_mbps",
			Help:    "Upload throughput measured by the server.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 16),
		},
		[]string{"protocol"},
	)
)
