// Package speedtest implements the transfer engine of the speedtest server:
// zero-filled download streams, upload byte counting and the throughput
// computation, over plain HTTP bodies or WebSockets.
package speedtest

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
)

// ParseSizeMB parses a requested download size in megabytes. Anything that
// does not parse as a decimal number yields spec.DefaultSizeMB; this is never
// an error for the caller. Values too large for a float64 come back as ±Inf,
// which ClampSizeMB snaps to the bounds.
func ParseSizeMB(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if isHex(raw) {
		return spec.DefaultSizeMB
	}
	mb, err := strconv.ParseFloat(raw, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return spec.DefaultSizeMB
	}
	if math.IsNaN(mb) {
		return spec.DefaultSizeMB
	}
	return mb
}

// isHex reports whether s uses Go's hexadecimal float syntax.
func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// ClampSizeMB constrains mb to [spec.MinSizeMB, spec.MaxSizeMB].
func ClampSizeMB(mb float64) float64 {
	if mb < spec.MinSizeMB {
		return spec.MinSizeMB
	}
	if mb > spec.MaxSizeMB {
		return spec.MaxSizeMB
	}
	return mb
}

// SizeBytes converts a size in MiB to a byte count, truncating.
func SizeBytes(mb float64) int64 {
	return int64(mb * spec.BytesPerMB)
}

// RequestedBytes returns the number of bytes to stream for the raw size_mb
// query value.
func RequestedBytes(raw string) int64 {
	return SizeBytes(ClampSizeMB(ParseSizeMB(raw)))
}
