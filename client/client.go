package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-lab/go/warnonerror"
	"github.com/robertodauria/speedtest/client/config"
	"github.com/robertodauria/speedtest/client/emitter"
	"github.com/robertodauria/speedtest/pkg/speedtest"
	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
	"go.uber.org/zap"
)

var (
	// ErrShortDownload is returned when the server sends fewer bytes than
	// it advertised.
	ErrShortDownload = errors.New("download shorter than advertised")

	// ErrUnexpectedStatus is returned for non-200 responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

type dialerFunc func(ctx context.Context, url string) (*websocket.Conn, error)

func defaultDialer(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig: &tls.Config{},
		ReadBufferSize:  spec.ChunkSize,
		WriteBufferSize: spec.ChunkSize,
	}
	headers := http.Header{}
	headers.Add("Sec-WebSocket-Protocol", spec.SecWebSocketProtocol)
	conn, _, err := dialer.DialContext(ctx, url, headers)
	return conn, err
}

type Client struct {
	httpClient *http.Client
	dialer     dialerFunc
	endpoint   string
	config     *config.ClientConfig
	emitter    emitter.Emitter
}

func New(endpoint string) *Client {
	return NewWithConfig(endpoint, config.NewDefault())
}

func NewWithConfig(endpoint string, config *config.ClientConfig) *Client {
	return &Client{
		httpClient: &http.Client{},
		dialer:     defaultDialer,
		endpoint:   endpoint,
		config:     config,
		emitter:    &emitter.LogEmitter{},
	}
}

// WithEmitter replaces the emitter receiving the results of Run.
func (c *Client) WithEmitter(e emitter.Emitter) *Client {
	c.emitter = e
	return c
}

func (c *Client) url(path string, query url.Values) string {
	u := url.URL{
		Scheme:   string(c.config.Scheme),
		Host:     c.endpoint,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// do sends req with the configured timeout. The returned cancel function
// must be called once the response body has been consumed.
func (c *Client) do(ctx context.Context, method, target string, body *speedtest.Generator) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if body != nil {
		req.Body = http.NoBody
		if body.Len() > 0 {
			req.Body = readCloser{body}
		}
		req.ContentLength = body.Len()
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		warnonerror.Close(resp.Body, "ignoring resp.Body.Close error")
		cancel()
		return nil, nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return resp, cancel, nil
}

type readCloser struct {
	*speedtest.Generator
}

func (readCloser) Close() error { return nil }

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, cancel, err := c.do(ctx, http.MethodGet, c.url(path, nil), nil)
	if err != nil {
		return err
	}
	defer cancel()
	defer warnonerror.Close(resp.Body, "ignoring resp.Body.Close error")
	return json.NewDecoder(resp.Body).Decode(v)
}

// Ping returns the round-trip time of a ping request and the server clock.
func (c *Client) Ping(ctx context.Context) (time.Duration, time.Time, error) {
	var p results.Ping
	start := time.Now()
	if err := c.getJSON(ctx, spec.PingPath, &p); err != nil {
		return 0, time.Time{}, err
	}
	return time.Since(start), time.UnixMilli(p.ServerTimeMS), nil
}

// Sizes returns the download sizes suggested by the server.
func (c *Client) Sizes(ctx context.Context) ([]float64, error) {
	var s results.Sizes
	if err := c.getJSON(ctx, spec.DownloadSizesPath, &s); err != nil {
		return nil, err
	}
	return s.SizesMB, nil
}

// Download requests sizeMB MiB and measures how fast the body arrives.
func (c *Client) Download(ctx context.Context, sizeMB float64) (*results.Download, error) {
	q := url.Values{}
	q.Set(spec.SizeParameterName, strconv.FormatFloat(sizeMB, 'f', -1, 64))
	resp, cancel, err := c.do(ctx, http.MethodGet, c.url(spec.DownloadPath, q), nil)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer warnonerror.Close(resp.Body, "ignoring resp.Body.Close error")

	read, err := speedtest.Consume(resp.Body)
	result := &results.Download{
		ExpectedBytes:   resp.ContentLength,
		BytesReceived:   read.BytesReceived,
		DurationSeconds: read.DurationSeconds,
		DownloadMbps:    read.UploadMbps,
	}
	if err != nil {
		return result, err
	}
	if resp.ContentLength >= 0 && read.BytesReceived != resp.ContentLength {
		return result, ErrShortDownload
	}
	return result, nil
}

// Upload sends numBytes zero bytes and returns the server's measurement.
func (c *Client) Upload(ctx context.Context, numBytes int64) (*results.Upload, error) {
	resp, cancel, err := c.do(ctx, http.MethodPost, c.url(spec.UploadPath, nil), speedtest.NewGenerator(numBytes))
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer warnonerror.Close(resp.Body, "ignoring resp.Body.Close error")

	var result results.Upload
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Run pings the server, then runs one download per configured size and one
// upload over the configured transport. Results go to the emitter. The first error is returned, but later
// subtests still run.
func (c *Client) Run(ctx context.Context) error {
	var firstErr error
	fail := func(kind spec.SubtestKind, err error) {
		c.emitter.OnError(kind, err)
		if firstErr == nil {
			firstErr = err
		}
	}

	rtt, serverTime, err := c.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	c.emitter.OnPing(rtt, serverTime)

	download, upload := c.Download, c.Upload
	if c.config.Transport == config.TransportWebSocket {
		download, upload = c.DownloadWS, c.UploadWS
	}

	for _, mb := range c.config.DownloadSizesMB {
		c.emitter.OnStart(spec.SubtestDownload, speedtest.SizeBytes(speedtest.ClampSizeMB(mb)))
		r, err := download(ctx, mb)
		if err != nil {
			fail(spec.SubtestDownload, err)
			continue
		}
		c.emitter.OnDownload(r)
		c.emitter.OnComplete(spec.SubtestDownload)
	}

	if c.config.UploadBytes > 0 {
		c.emitter.OnStart(spec.SubtestUpload, c.config.UploadBytes)
		r, err := upload(ctx, c.config.UploadBytes)
		if err != nil {
			fail(spec.SubtestUpload, err)
		} else {
			c.emitter.OnUpload(r)
			c.emitter.OnComplete(spec.SubtestUpload)
		}
	}
	return firstErr
}

func (c *Client) wsURL(path string, query url.Values) string {
	scheme := "ws"
	if c.config.Scheme == config.HTTPS {
		scheme = "wss"
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     c.endpoint,
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// dialWS dials target and closes the connection once ctx is done. The
// returned stop function must be called when the connection is no longer
// used.
func (c *Client) dialWS(ctx context.Context, target string) (*websocket.Conn, func(), error) {
	conn, err := c.dialer(ctx, target)
	if err != nil {
		return nil, nil, err
	}
	conn.SetReadLimit(spec.MaxMessageSize)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		warnonerror.Close(conn, "ignoring conn.Close error")
	}()
	return conn, func() { close(done) }, nil
}

// DownloadWS requests sizeMB MiB over a WebSocket and measures how fast the
// binary messages arrive. The transfer ends when the server closes normally.
func (c *Client) DownloadWS(ctx context.Context, sizeMB float64) (*results.Download, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	raw := strconv.FormatFloat(sizeMB, 'f', -1, 64)
	q := url.Values{}
	q.Set(spec.SizeParameterName, raw)
	conn, stop, err := c.dialWS(ctx, c.wsURL(spec.WSDownloadPath, q))
	if err != nil {
		return nil, err
	}
	defer stop()

	result := &results.Download{ExpectedBytes: speedtest.RequestedBytes(raw)}
	start := time.Now()
	finish := func() {
		read := speedtest.NewUpload(result.BytesReceived, time.Since(start))
		result.DurationSeconds = read.DurationSeconds
		result.DownloadMbps = read.UploadMbps
	}
	for {
		kind, reader, err := conn.NextReader()
		if err != nil {
			finish()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return result, err
			}
			break
		}
		switch kind {
		case websocket.BinaryMessage:
			n, err := io.Copy(io.Discard, reader)
			result.BytesReceived += n
			if err != nil {
				finish()
				return result, err
			}
		case websocket.TextMessage:
			var m results.Measurement
			if err := json.NewDecoder(reader).Decode(&m); err != nil {
				finish()
				return result, err
			}
			if m.AppInfo != nil {
				zap.L().Sugar().Debugw("Download progress", "origin", m.Origin,
					"bytes", m.AppInfo.NumBytes, "elapsed_us", m.AppInfo.ElapsedTime)
			}
		}
	}
	if result.BytesReceived != result.ExpectedBytes {
		return result, ErrShortDownload
	}
	return result, nil
}

// UploadWS sends numBytes zero bytes as binary messages, then asks the
// server for its measurement with a text message.
func (c *Client) UploadWS(ctx context.Context, numBytes int64) (*results.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	conn, stop, err := c.dialWS(ctx, c.wsURL(spec.WSUploadPath, nil))
	if err != nil {
		return nil, err
	}
	defer stop()

	resultch := make(chan *results.Upload, 1)
	errch := make(chan error, 1)
	go func() {
		for {
			var m results.Measurement
			if err := conn.ReadJSON(&m); err != nil {
				errch <- err
				return
			}
			if m.Result != nil {
				resultch <- m.Result
				return
			}
		}
	}()

	gen := speedtest.NewGenerator(numBytes)
	for chunk, ok := gen.Next(); ok; chunk, ok = gen.Next() {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			return nil, err
		}
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte("done")); err != nil {
		return nil, err
	}

	select {
	case r := <-resultch:
		return r, nil
	case err := <-errch:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
