package client

import (
	"net"

	"github.com/die-net/sockslink/internal/dialer"
	"github.com/die-net/sockslink/internal/socks5"
)

// Stream is an established CONNECT tunnel. Reads and writes go to the
// destination unchanged.
type Stream struct {
	net.Conn
	bound socks5.Reply
}

// BoundAddr returns the address the proxy reported using for the outbound
// connection, as host:port.
func (s *Stream) BoundAddr() string {
	return s.bound.Address()
}

// CloseWrite half-closes the tunnel if the underlying transport supports it.
func (s *Stream) CloseWrite() error {
	return dialer.CloseWrite(s.Conn)
}

// Unwrap returns the transport the stream runs on.
func (s *Stream) Unwrap() net.Conn {
	return s.Conn
}
