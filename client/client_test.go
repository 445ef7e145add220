package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-lab/go/testingx"
	"github.com/robertodauria/speedtest/client/config"
	"github.com/robertodauria/speedtest/internal/handler"
	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
)

type recordingEmitter struct {
	pings     int
	downloads []*results.Download
	uploads   []*results.Upload
	errs      []error
}

func (e *recordingEmitter) OnPing(time.Duration, time.Time)       { e.pings++ }
func (e *recordingEmitter) OnStart(spec.SubtestKind, int64)       {}
func (e *recordingEmitter) OnDownload(r *results.Download)        { e.downloads = append(e.downloads, r) }
func (e *recordingEmitter) OnUpload(r *results.Upload)            { e.uploads = append(e.uploads, r) }
func (e *recordingEmitter) OnError(_ spec.SubtestKind, err error) { e.errs = append(e.errs, err) }
func (e *recordingEmitter) OnComplete(spec.SubtestKind)           {}

func newClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.New(config.HTTP, 10*time.Second, []float64{0.5, 1}, 3<<20)
	return NewWithConfig(strings.TrimPrefix(srv.URL, "http://"), cfg)
}

func TestClient_Subtests(t *testing.T) {
	c := newClient(t, handler.NewRouter(handler.New(0), []string{"*"}, ""))
	ctx := context.Background()

	rtt, serverTime, err := c.Ping(ctx)
	testingx.Must(t, err, "Ping failed")
	if rtt <= 0 || time.Since(serverTime) > time.Minute {
		t.Errorf("Ping() = %v, %v", rtt, serverTime)
	}

	sizes, err := c.Sizes(ctx)
	testingx.Must(t, err, "Sizes failed")
	if len(sizes) != 5 || sizes[0] != 0.5 || sizes[4] != 10 {
		t.Errorf("Sizes() = %v", sizes)
	}

	d, err := c.Download(ctx, 2)
	testingx.Must(t, err, "Download failed")
	if d.BytesReceived != 2<<20 || d.ExpectedBytes != 2<<20 || d.DownloadMbps <= 0 {
		t.Errorf("Download() = %+v", d)
	}

	u, err := c.Upload(ctx, 1234567)
	testingx.Must(t, err, "Upload failed")
	if u.BytesReceived != 1234567 || u.Status != "ok" {
		t.Errorf("Upload() = %+v", u)
	}

	u, err = c.Upload(ctx, 0)
	testingx.Must(t, err, "empty Upload failed")
	if u.BytesReceived != 0 || u.DurationSeconds <= 0 {
		t.Errorf("empty Upload() = %+v", u)
	}
}

func TestClient_Run(t *testing.T) {
	c := newClient(t, handler.NewRouter(handler.New(0), []string{"*"}, ""))
	e := &recordingEmitter{}
	testingx.Must(t, c.WithEmitter(e).Run(context.Background()), "Run failed")
	if e.pings != 1 || len(e.downloads) != 2 || len(e.uploads) != 1 || len(e.errs) != 0 {
		t.Fatalf("emitter = %+v", e)
	}
	if e.downloads[0].BytesReceived != 524288 || e.downloads[1].BytesReceived != 1048576 {
		t.Errorf("downloads = %+v, %+v", e.downloads[0], e.downloads[1])
	}
	if e.uploads[0].BytesReceived != 3<<20 {
		t.Errorf("upload = %+v", e.uploads[0])
	}
}

func TestClient_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(spec.PingPath, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","server_time_ms":1}`))
	})
	mux.HandleFunc(spec.DownloadPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	mux.HandleFunc(spec.UploadPath, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	c := newClient(t, mux)
	e := &recordingEmitter{}
	err := c.WithEmitter(e).Run(context.Background())
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("Run() error = %v, want %v", err, ErrUnexpectedStatus)
	}
	// Every subtest is attempted even after a failure.
	if len(e.errs) != 3 {
		t.Errorf("got %d errors, want 3", len(e.errs))
	}
}

func TestClient_WebSocket(t *testing.T) {
	c := newClient(t, handler.NewRouter(handler.New(0), []string{"*"}, ""))
	ctx := context.Background()

	d, err := c.DownloadWS(ctx, 1.5)
	testingx.Must(t, err, "DownloadWS failed")
	if d.BytesReceived != 1572864 || d.ExpectedBytes != 1572864 || d.DownloadMbps <= 0 {
		t.Errorf("DownloadWS() = %+v", d)
	}

	// Out of range sizes are clamped by the server.
	d, err = c.DownloadWS(ctx, 0.01)
	testingx.Must(t, err, "DownloadWS failed")
	if d.BytesReceived != 524288 {
		t.Errorf("DownloadWS(0.01) received %d bytes, want 524288", d.BytesReceived)
	}

	u, err := c.UploadWS(ctx, 3*spec.ChunkSize+5)
	testingx.Must(t, err, "UploadWS failed")
	if u.BytesReceived != 3*spec.ChunkSize+5 || u.Status != "ok" || u.DurationSeconds <= 0 {
		t.Errorf("UploadWS() = %+v", u)
	}
}

func TestClient_RunWebSocket(t *testing.T) {
	c := newClient(t, handler.NewRouter(handler.New(0), []string{"*"}, ""))
	c.config.Transport = config.TransportWebSocket
	e := &recordingEmitter{}
	testingx.Must(t, c.WithEmitter(e).Run(context.Background()), "Run failed")
	if e.pings != 1 || len(e.downloads) != 2 || len(e.uploads) != 1 || len(e.errs) != 0 {
		t.Fatalf("emitter = %+v", e)
	}
	if e.downloads[0].BytesReceived != 524288 || e.downloads[1].BytesReceived != 1048576 {
		t.Errorf("downloads = %+v, %+v", e.downloads[0], e.downloads[1])
	}
	if e.uploads[0].BytesReceived != 3<<20 {
		t.Errorf("upload = %+v", e.uploads[0])
	}
}

func TestClient_WebSocketURL(t *testing.T) {
	c := NewWithConfig("example.org", config.NewDefault())
	if got := c.wsURL(spec.WSUploadPath, nil); got != "wss://example.org/ws/upload" {
		t.Errorf("wsURL() = %q", got)
	}
	c.config.Scheme = config.HTTP
	if got := c.wsURL(spec.WSUploadPath, nil); got != "ws://example.org/ws/upload" {
		t.Errorf("wsURL() = %q", got)
	}
}
