// Package spec contains constants for the speedtest protocol.
package spec

import "time"

const (
	// ChunkSize is the maximum number of bytes moved by a single write on
	// download or a single read on upload.
	ChunkSize = 64 << 10

	// BytesPerMB converts a requested download size in megabytes to bytes.
	// Download sizes use binary megabytes (MiB).
	BytesPerMB = 1 << 20

	// BitsPerMegabit converts bits/s to Mb/s. Throughput uses decimal mega-,
	// unlike download sizing.
	BitsPerMegabit = 1000 * 1000

	// DefaultSizeMB is the download size used when size_mb is missing or
	// cannot be parsed.
	DefaultSizeMB = 5.0

	// MinSizeMB and MaxSizeMB bound the download size, inclusive.
	MinSizeMB = 0.5
	MaxSizeMB = 100.0

	// MinDuration is the floor applied to the upload duration before
	// computing the throughput.
	MinDuration = time.Microsecond

	// MinMeasureInterval is the minimum interval between subsequent measurements.
	MinMeasureInterval = 100 * time.Millisecond

	// AvgMeasureInterval is the average interval between subsequent measurements.
	AvgMeasureInterval = 250 * time.Millisecond

	// MaxMeasureInterval is the maximum interval between subsequent measurements.
	MaxMeasureInterval = 400 * time.Millisecond

	// MaxMessageSize is the largest WebSocket message accepted on upload.
	MaxMessageSize = 1 << 20

	// MaxRuntime is the maximum runtime of a WebSocket subtest.
	MaxRuntime = 25 * time.Second

	// SecWebSocketProtocol is the value of the Sec-WebSocket-Protocol header.
	// Clients may omit it.
	SecWebSocketProtocol = "net.speedtest.v1"

	// SizeParameterName is the query parameter selecting the download size.
	SizeParameterName = "size_mb"

	PingPath          = "/ping"
	DownloadSizesPath = "/download-sizes"
	DownloadPath      = "/download"
	UploadPath        = "/upload"
	WSDownloadPath    = "/ws/download"
	WSUploadPath      = "/ws/upload"

	// MeasurementIDHeader carries the per-request measurement ID.
	MeasurementIDHeader = "X-Measurement-Id"
)

// suggestedSizesMB are the advisory download sizes offered to clients.
var suggestedSizesMB = [...]float64{0.5, 1, 2, 5, 10}

// SuggestedSizesMB returns a copy of the advisory download sizes. Any size
// within [MinSizeMB, MaxSizeMB] is accepted, not only these.
func SuggestedSizesMB() []float64 {
	sizes := make([]float64, len(suggestedSizesMB))
	copy(sizes, suggestedSizesMB[:])
	return sizes
}

// SubtestKind indicates the subtest kind
type SubtestKind string

const (
	// SubtestDownload is a download subtest
	SubtestDownload = SubtestKind("download")

	// SubtestUpload is a upload subtest
	SubtestUpload = SubtestKind("upload")
)
