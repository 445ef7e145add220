package speedtest

import (
	"errors"
	"io"
	"time"

	"github.com/robertodauria/speedtest/pkg/speedtest/results"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
)

// Consume reads r until end of stream and returns the number of bytes read,
// the elapsed time and the resulting throughput. If reading fails, the
// partial result is returned along with the error.
func Consume(r io.Reader) (*results.Upload, error) {
	return consume(r, time.Now)
}

func consume(r io.Reader, now func() time.Time) (*results.Upload, error) {
	buf := make([]byte, spec.ChunkSize)
	var total int64
	start := now()
	for {
		n, err := r.Read(buf)
		total += int64(n)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return NewUpload(total, now().Sub(start)), err
		}
	}
	return NewUpload(total, now().Sub(start)), nil
}

// NewUpload builds the upload result for numBytes received over elapsed.
// elapsed is floored to spec.MinDuration.
func NewUpload(numBytes int64, elapsed time.Duration) *results.Upload {
	if elapsed < spec.MinDuration {
		elapsed = spec.MinDuration
	}
	seconds := elapsed.Seconds()
	return &results.Upload{
		Status:          results.StatusOK,
		BytesReceived:   numBytes,
		DurationSeconds: seconds,
		UploadMbps:      Mbps(numBytes, seconds),
	}
}

// Mbps returns the throughput in decimal megabits per second.
func Mbps(numBytes int64, seconds float64) float64 {
	return float64(numBytes) * 8 / seconds / spec.BitsPerMegabit
}
