package socks5

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrRange is returned when a value does not fit the wire field it is
	// written to.
	ErrRange = errors.New("socks5: value out of range")

	// ErrBounds is returned when a fixed-width read runs past the end of the
	// buffer.
	ErrBounds = errors.New("socks5: read out of bounds")
)

// ProtocolError reports a peer that violated RFC 1928/1929 framing.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string {
	return "socks5: " + e.msg
}

var (
	ErrInvalidVersion         = &ProtocolError{"invalid version"}
	ErrNoAcceptableMethods    = &ProtocolError{"no acceptable methods"}
	ErrUnexpectedMethod       = &ProtocolError{"unexpected auth method"}
	ErrAuthFailed             = &ProtocolError{"authentication failed"}
	ErrInvalidReserved        = &ProtocolError{"invalid reserved octet"}
	ErrInvalidFragment        = &ProtocolError{"invalid fragment octet"}
	ErrUnsupportedAddressType = &ProtocolError{"unsupported address type"}
)

// AddressError is returned for a destination host that is neither an IP
// literal nor a valid hostname.
type AddressError struct {
	Host string
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("socks5: invalid destination host %q", e.Host)
}

// ReplyError carries a non-success reply code returned by the proxy.
type ReplyError struct {
	Code ReplyCode
}

func (e *ReplyError) Error() string {
	return "socks5: " + e.Code.String()
}

// TransportError wraps an I/O failure on the connection to the proxy.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "socks5: " + e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the underlying failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func transportErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}
