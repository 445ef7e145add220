package config

import "time"

type Scheme string

const (
	HTTPS Scheme = "https"
	HTTP  Scheme = "http"
)

// Transport selects how the transfers are carried.
type Transport string

const (
	// TransportHTTP uses plain GET /download and POST /upload.
	TransportHTTP Transport = "http"
	// TransportWebSocket uses /ws/download and /ws/upload.
	TransportWebSocket Transport = "websocket"
)

const (
	DefaultTransport   = TransportHTTP
	DefaultScheme      = HTTPS
	DefaultTimeout     = 60 * time.Second
	DefaultUploadBytes = 10 << 20
)

// DefaultDownloadSizesMB are the download sizes measured when none are given.
var DefaultDownloadSizesMB = []float64{1, 5}

type ClientConfig struct {
	// The Scheme to use (http/https).
	Scheme Scheme

	// The Transport of the download and upload subtests.
	Transport Transport

	// The Timeout of each request, including the transfer.
	Timeout time.Duration

	// The download sizes to measure, in MiB.
	DownloadSizesMB []float64

	// The number of bytes to upload.
	UploadBytes int64
}

func New(scheme Scheme, timeout time.Duration, sizes []float64, upload int64) *ClientConfig {
	return &ClientConfig{
		Scheme:          scheme,
		Transport:       DefaultTransport,
		Timeout:         timeout,
		DownloadSizesMB: sizes,
		UploadBytes:     upload,
	}
}

func NewDefault() *ClientConfig {
	return New(DefaultScheme, DefaultTimeout, DefaultDownloadSizesMB, DefaultUploadBytes)
}
