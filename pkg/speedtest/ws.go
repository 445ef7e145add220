package speedtest

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-lab/go/memoryless"
	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
	"go.uber.org/zap"
)

const closeGracePeriod = time.Second

var tickerConfig = memoryless.Config{
	Min:      spec.MinMeasureInterval,
	Expected: spec.AvgMeasureInterval,
	Max:      spec.MaxMeasureInterval,
}

// Upgrade upgrades the HTTP connection to WebSockets.
// Returns the upgraded websocket.Conn.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	u := websocket.Upgrader{
		// Allow cross-origin resource sharing.
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		// Only selected when the client offers it.
		Subprotocols:    []string{spec.SecWebSocketProtocol},
		ReadBufferSize:  spec.ChunkSize,
		WriteBufferSize: spec.ChunkSize,
	}
	return u.Upgrade(w, r, nil)
}

// Sender writes the generator's chunks as binary messages over conn and
// closes the WebSocket normally once the generator is exhausted.
//
// Measurements are sent as text messages and over mchannel. Sends on
// mchannel never block, so pass a buffered channel (e.g., 64 slots) to avoid
// losing them. mchannel is closed when Sender returns.
//
// The context drives how long the connection lasts. If the context is
// canceled or there is an error, the connection is closed.
func Sender(ctx context.Context, conn *websocket.Conn, gen *Generator,
	mchannel chan<- results.Measurement) error {
	errch := make(chan error, 2)
	wg := &sync.WaitGroup{}
	wg.Add(2)

	defer func() {
		conn.Close()
		// Make sure both goroutines are done before closing mchannel.
		wg.Wait()
		close(mchannel)
	}()

	// The reader processes the client's close frame and any counterflow
	// messages.
	go readcounterflow(wg, conn, errch)
	go sender(ctx, wg, conn, gen, mchannel, errch)

	select {
	case <-ctx.Done():
		zap.L().Sugar().Debug("ctx done")
		return nil
	case err := <-errch:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return err
		}
		return nil
	}
}

func sender(ctx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, gen *Generator,
	mchannel chan<- results.Measurement, errch chan<- error) {
	defer wg.Done()

	ticker, err := memoryless.NewTicker(ctx, tickerConfig)
	if err != nil {
		errch <- err
		return
	}
	defer ticker.Stop()

	start := time.Now()
	var numBytes int64
	measure := func() error {
		m := results.Measurement{
			AppInfo: &results.AppInfo{
				NumBytes:    numBytes,
				ElapsedTime: time.Since(start).Microseconds(),
			},
			Origin: "sender",
		}
		err := conn.WriteJSON(m)
		select {
		case mchannel <- m:
		default:
			// discard message
		}
		return err
	}

	for chunk, ok := gen.Next(); ok; chunk, ok = gen.Next() {
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			errch <- err
			return
		}
		numBytes += int64(len(chunk))

		select {
		case <-ticker.C:
			if err := measure(); err != nil {
				errch <- err
				return
			}
		default:
			// NOTHING
		}
	}

	// The final measurement always carries the full byte count.
	if err := measure(); err != nil {
		errch <- err
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil {
		errch <- err
	}
	// The client's close reply reaches errch through readcounterflow.
}

// readcounterflow drains messages sent by the client during a download until
// the connection fails or is closed. Errors are reported via errch.
func readcounterflow(wg *sync.WaitGroup, conn *websocket.Conn, errch chan<- error) {
	defer wg.Done()
	conn.SetReadLimit(spec.MaxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			errch <- err
			return
		}
	}
}

// Receiver counts the bytes of binary messages received over conn. The first
// text message from the client ends the upload: the result is sent back as a
// final Measurement and the connection is closed normally.
//
// Measurements are sent as text messages and over mchannel, which is closed
// when Receiver returns. If the context is canceled before the client ends the
// upload, the connection is closed and the error from the read is returned.
func Receiver(ctx context.Context, conn *websocket.Conn,
	mchannel chan<- results.Measurement) (*results.Upload, error) {
	defer close(mchannel)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ticker, err := memoryless.NewTicker(ctx, tickerConfig)
	if err != nil {
		return nil, err
	}
	defer ticker.Stop()

	conn.SetReadLimit(spec.MaxMessageSize)
	var numBytes int64
	start := time.Now()
	for {
		kind, reader, err := conn.NextReader()
		if err != nil {
			return nil, err
		}

		if kind == websocket.TextMessage {
			if _, err := io.Copy(io.Discard, reader); err != nil {
				return nil, err
			}
			result := NewUpload(numBytes, time.Since(start))
			m := results.Measurement{
				AppInfo: &results.AppInfo{
					NumBytes:    numBytes,
					ElapsedTime: time.Since(start).Microseconds(),
				},
				Origin: "receiver",
				Result: result,
			}
			if err := conn.WriteJSON(m); err != nil {
				return result, err
			}
			select {
			case mchannel <- m:
			default:
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil {
				return result, err
			}
			return result, nil
		}

		// Binary message: count bytes and discard.
		n, err := io.Copy(io.Discard, reader)
		numBytes += n
		if err != nil {
			return nil, err
		}

		select {
		case <-ticker.C:
			m := results.Measurement{
				AppInfo: &results.AppInfo{
					NumBytes:    numBytes,
					ElapsedTime: time.Since(start).Microseconds(),
				},
				Origin: "receiver",
			}
			if err := conn.WriteJSON(m); err != nil {
				return nil, err
			}
			select {
			case mchannel <- m:
			default:
				// discard message
			}
		default:
			// NOTHING
		}
	}
}
