package speedtest

import (
	"io"

	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
)

// zeroChunk backs every chunk returned by Generator.Next. It must never be
// written to.
var zeroChunk = make([]byte, spec.ChunkSize)

// Generator produces a finite sequence of zero-filled chunks totalling a
// fixed number of bytes. Chunks are produced on demand, so the payload is
// never held in memory as a whole. A Generator is not safe for concurrent use
// and cannot be rewound.
type Generator struct {
	total     int64
	remaining int64
}

// NewGenerator returns a Generator for totalBytes bytes. Negative values are
// treated as zero.
func NewGenerator(totalBytes int64) *Generator {
	if totalBytes < 0 {
		totalBytes = 0
	}
	return &Generator{
		total:     totalBytes,
		remaining: totalBytes,
	}
}

// Len returns the total number of bytes the generator produces. This is the
// value to advertise as Content-Length.
func (g *Generator) Len() int64 {
	return g.total
}

// Remaining returns the number of bytes not yet produced.
func (g *Generator) Remaining() int64 {
	return g.remaining
}

// Next returns the next chunk and true, or nil and false once all bytes have
// been produced. Every chunk but the last is exactly spec.ChunkSize bytes
// long. The returned slice is shared and must not be modified.
func (g *Generator) Next() ([]byte, bool) {
	if g.remaining <= 0 {
		return nil, false
	}
	n := int64(spec.ChunkSize)
	if g.remaining < n {
		n = g.remaining
	}
	g.remaining -= n
	return zeroChunk[:n], true
}

// Read implements io.Reader by filling p with zero bytes.
func (g *Generator) Read(p []byte) (int, error) {
	if g.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > g.remaining {
		p = p[:g.remaining]
	}
	n := 0
	for n < len(p) {
		n += copy(p[n:], zeroChunk)
	}
	g.remaining -= int64(n)
	return n, nil
}

// WriteTo implements io.WriterTo. It writes one chunk at a time, so a slow
// writer throttles the generator.
func (g *Generator) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for chunk, ok := g.Next(); ok; chunk, ok = g.Next() {
		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}
