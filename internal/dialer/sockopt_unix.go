//go:build unix

package dialer

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

var setSocketBuffers = func(rc syscall.RawConn, size int) error {
	var ctrlErr error
	err := rc.Control(func(fd uintptr) {
		if ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size); ctrlErr != nil {
			ctrlErr = fmt.Errorf("SO_RCVBUF: %w", ctrlErr)
			return
		}
		if ctrlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, size); ctrlErr != nil {
			ctrlErr = fmt.Errorf("SO_SNDBUF: %w", ctrlErr)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
