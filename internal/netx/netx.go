// Package netx gives handlers access to the connection a request arrived on.
package netx

import (
	"context"
	"errors"
	"net"

	guuid "github.com/google/uuid"
	"github.com/m-lab/uuid"
)

var (
	// ErrNotTCP is returned when an operation requires a TCP socket.
	ErrNotTCP = errors.New("not a TCP connection")

	// ErrNoSupport is returned where socket cookies are not available.
	ErrNoSupport = errors.New("socket cookies not supported")
)

type connKey struct{}

// SaveConn stores c in ctx. It has the signature of http.Server.ConnContext.
func SaveConn(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connKey{}, c)
}

// LoadConn returns the connection stored by SaveConn, or nil.
func LoadConn(ctx context.Context) net.Conn {
	c, _ := ctx.Value(connKey{}).(net.Conn)
	return c
}

// Cookie returns the kernel's socket cookie for c. The descriptor is only
// borrowed through SyscallConn, so the connection keeps its non-blocking
// mode and its deadlines keep working.
func Cookie(c net.Conn) (uint64, error) {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return 0, ErrNotTCP
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var cookie uint64
	var cerr error
	if err := raw.Control(func(fd uintptr) {
		cookie, cerr = getCookie(fd)
	}); err != nil {
		return 0, err
	}
	return cookie, cerr
}

// MeasurementID returns an identifier for a measurement running on the
// connection stored in ctx. TCP sockets are identified by their socket
// cookie, so the ID matches what other tools report for the same flow.
// Otherwise a random UUID is returned.
func MeasurementID(ctx context.Context) string {
	if cookie, err := Cookie(LoadConn(ctx)); err == nil {
		return uuid.FromCookie(cookie)
	}
	return guuid.NewString()
}
