package dialer

import (
	"net"
	"time"
)

// TimeoutConn arms a fresh deadline before every Read and Write, so Timeout
// bounds each operation rather than the connection's lifetime. An expired
// deadline surfaces as a net.Error whose Timeout reports true.
type TimeoutConn struct {
	net.Conn
	Timeout time.Duration
}

// WithIOTimeout wraps c in a TimeoutConn. A non-positive d returns c as is.
func WithIOTimeout(c net.Conn, d time.Duration) net.Conn {
	if d <= 0 {
		return c
	}
	return &TimeoutConn{Conn: c, Timeout: d}
}

func (c *TimeoutConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.Timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *TimeoutConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.Timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// Unwrap returns the wrapped connection.
func (c *TimeoutConn) Unwrap() net.Conn {
	return c.Conn
}
