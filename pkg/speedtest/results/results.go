// Package results contains the messages returned by the speedtest server and
// the measurements collected by its clients.
package results

// StatusOK is the status of every successful response.
const StatusOK = "ok"

// Upload is the result of an upload subtest, as computed by the server.
type Upload struct {
	Status          string  `json:"status"`
	BytesReceived   int64   `json:"bytes_received"`
	DurationSeconds float64 `json:"duration_seconds"`
	UploadMbps      float64 `json:"upload_mbps"`
}

// Download is the result of a download subtest, as computed by the client.
type Download struct {
	ExpectedBytes   int64   `json:"expected_bytes"`
	BytesReceived   int64   `json:"bytes_received"`
	DurationSeconds float64 `json:"duration_seconds"`
	DownloadMbps    float64 `json:"download_mbps"`
}

// Ping is the response to a liveness/clock check.
type Ping struct {
	Status       string `json:"status"`
	ServerTimeMS int64  `json:"server_time_ms"`
}

// Sizes lists the suggested download sizes.
type Sizes struct {
	SizesMB []float64 `json:"sizes_mb"`
}

// AppInfo contains an application level measurement.
type AppInfo struct {
	NumBytes int64
	// ElapsedTime is in microseconds.
	ElapsedTime int64
}

// Measurement is sent as a JSON text message during WebSocket subtests.
type Measurement struct {
	AppInfo       *AppInfo `json:",omitempty"`
	Origin        string   `json:",omitempty"`
	MeasurementID string   `json:",omitempty"`
	// Result is only set on the final message of an upload subtest.
	Result *Upload `json:",omitempty"`
}
