//go:build !unix

package dialer

import "syscall"

// Without raw socket options, ListenUDP falls back to SetReadBuffer and
// SetWriteBuffer.
var setSocketBuffers func(rc syscall.RawConn, size int) error
