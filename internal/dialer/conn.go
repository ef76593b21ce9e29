package dialer

import (
	"errors"
	"net"
)

// CloseWrite half-closes c, looking through wrappers that expose
// Unwrap() net.Conn. It returns errors.ErrUnsupported if nothing in the chain
// can half-close.
func CloseWrite(c net.Conn) error {
	for c != nil {
		if cw, ok := c.(interface{ CloseWrite() error }); ok {
			return cw.CloseWrite()
		}
		u, ok := c.(interface{ Unwrap() net.Conn })
		if !ok {
			break
		}
		c = u.Unwrap()
	}
	return errors.ErrUnsupported
}
