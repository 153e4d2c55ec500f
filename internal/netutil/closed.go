package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedClose reports whether err is the ordinary result of the peer
// going away (EOF, closed connection, broken pipe, reset). Callers log
// these at debug level and treat anything else as a real failure.
func IsExpectedClose(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// IsTimeout reports whether err is a deadline expiry on a connection.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
