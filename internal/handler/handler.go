package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/m-lab/go/warnonerror"
	"github.com/robertodauria/speedtest/internal/metrics"
	"github.com/robertodauria/speedtest/internal/netx"
	"github.com/robertodauria/speedtest/pkg/speedtest"
	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
	"go.uber.org/zap"
)

const (
	protoHTTP      = "http"
	protoWebSocket = "websocket"
)

// Handler handles the speedtest subtests.
type Handler struct {
	maxUploadBytes int64
	now            func() time.Time
}

// New creates a new Handler. Uploads larger than maxUploadBytes are rejected;
// zero disables the limit.
func New(maxUploadBytes int64) *Handler {
	return &Handler{
		maxUploadBytes: maxUploadBytes,
		now:            time.Now,
	}
}

// writeJSON sends v as the JSON response body.
func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		zap.L().Sugar().Debugw("Cannot write response", "error", err)
	}
}

// measurementID tags the response with the request's measurement ID and
// returns it.
func measurementID(rw http.ResponseWriter, req *http.Request) string {
	mid := netx.MeasurementID(req.Context())
	rw.Header().Set(spec.MeasurementIDHeader, mid)
	return mid
}

// Ping reports the server clock in milliseconds since the epoch.
func (h *Handler) Ping(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, results.Ping{
		Status:       results.StatusOK,
		ServerTimeMS: h.now().UnixMilli(),
	})
}

// DownloadSizes lists the suggested download sizes.
func (h *Handler) DownloadSizes(rw http.ResponseWriter, req *http.Request) {
	writeJSON(rw, results.Sizes{SizesMB: spec.SuggestedSizesMB()})
}

// Download streams size_mb MiB of zero bytes.
func (h *Handler) Download(rw http.ResponseWriter, req *http.Request) {
	mid := measurementID(rw, req)
	gen := speedtest.NewGenerator(speedtest.RequestedBytes(req.URL.Query().Get(spec.SizeParameterName)))

	rw.Header().Set("Content-Type", "application/octet-stream")
	rw.Header().Set("Content-Length", strconv.FormatInt(gen.Len(), 10))
	rw.WriteHeader(http.StatusOK)

	n, err := gen.WriteTo(rw)
	metrics.TransferBytesTotal.WithLabelValues(string(spec.SubtestDownload), protoHTTP).Add(float64(n))
	if err != nil {
		metrics.TransfersTotal.WithLabelValues(string(spec.SubtestDownload), protoHTTP, "error").Inc()
		zap.L().Sugar().Infow("Download interrupted",
			"mid", mid,
			"client", req.RemoteAddr,
			"sent", n,
			"expected", gen.Len(),
			"error", err)
		return
	}
	metrics.TransfersTotal.WithLabelValues(string(spec.SubtestDownload), protoHTTP, "ok").Inc()
	zap.L().Sugar().Debugw("Download completed", "mid", mid, "bytes", n)
}

// Upload reads the request body to the end and reports the throughput.
func (h *Handler) Upload(rw http.ResponseWriter, req *http.Request) {
	mid := measurementID(rw, req)
	body := req.Body
	if h.maxUploadBytes > 0 {
		body = http.MaxBytesReader(rw, req.Body, h.maxUploadBytes)
	}
	defer warnonerror.Close(body, "upload: ignoring body.Close error")

	result, err := speedtest.Consume(body)
	metrics.TransferBytesTotal.WithLabelValues(string(spec.SubtestUpload), protoHTTP).Add(float64(result.BytesReceived))
	if err != nil {
		metrics.TransfersTotal.WithLabelValues(string(spec.SubtestUpload), protoHTTP, "error").Inc()
		zap.L().Sugar().Infow("Upload interrupted",
			"mid", mid,
			"client", req.RemoteAddr,
			"received", result.BytesReceived,
			"error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(rw, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		// Let net/http drop the connection without a response body.
		panic(http.ErrAbortHandler)
	}

	metrics.TransfersTotal.WithLabelValues(string(spec.SubtestUpload), protoHTTP, "ok").Inc()
	metrics.UploadRate.WithLabelValues(protoHTTP).Observe(result.UploadMbps)
	zap.L().Sugar().Debugw("Upload completed",
		"mid", mid,
		"bytes", result.BytesReceived,
		"mbps", result.UploadMbps)
	writeJSON(rw, result)
}

// DownloadWS runs the download subtest over a WebSocket.
func (h *Handler) DownloadWS(rw http.ResponseWriter, req *http.Request) {
	h.runMeasurement(spec.SubtestDownload, rw, req)
}

// UploadWS runs the upload subtest over a WebSocket.
func (h *Handler) UploadWS(rw http.ResponseWriter, req *http.Request) {
	h.runMeasurement(spec.SubtestUpload, rw, req)
}

func (h *Handler) runMeasurement(kind spec.SubtestKind, rw http.ResponseWriter,
	req *http.Request) {
	mid := measurementID(rw, req)
	size := speedtest.RequestedBytes(req.URL.Query().Get(spec.SizeParameterName))

	zap.L().Sugar().Debugw("Upgrading connection to websocket",
		"mid", mid,
		"url", req.URL.String())
	conn, err := speedtest.Upgrade(rw, req)
	if err != nil {
		// The upgrader has already replied to the client.
		metrics.TransfersTotal.WithLabelValues(string(kind), protoWebSocket, "upgrade-error").Inc()
		zap.L().Sugar().Warnw("Websocket upgrade failed", "mid", mid, "error", err)
		return
	}
	defer conn.Close()

	// Make sure the connection is closed after (at most) MaxRuntime.
	ctx, cancel := context.WithTimeout(req.Context(), spec.MaxRuntime)
	defer cancel()

	measurements := make(chan results.Measurement, 64)
	var last results.Measurement
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for m := range measurements {
			last = m
			zap.L().Sugar().Debugw("Measurement",
				"mid", mid,
				"origin", m.Origin,
				"bytes", m.AppInfo.NumBytes)
		}
	}()

	result := "ok"
	if kind == spec.SubtestDownload {
		err = speedtest.Sender(ctx, conn, speedtest.NewGenerator(size), measurements)
	} else {
		var up *results.Upload
		up, err = speedtest.Receiver(ctx, conn, measurements)
		if up != nil {
			metrics.UploadRate.WithLabelValues(protoWebSocket).Observe(up.UploadMbps)
		}
	}
	<-drained
	if err != nil {
		result = "error"
		zap.L().Sugar().Infow("Websocket subtest failed",
			"mid", mid,
			"subtest", kind,
			"error", err)
	}
	if last.AppInfo != nil {
		metrics.TransferBytesTotal.WithLabelValues(string(kind), protoWebSocket).Add(float64(last.AppInfo.NumBytes))
	}
	metrics.TransfersTotal.WithLabelValues(string(kind), protoWebSocket, result).Inc()
}
