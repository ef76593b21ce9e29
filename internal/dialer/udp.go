package dialer

import (
	"context"
	"fmt"
	"net"
	"syscall"
)

// ListenUDP opens an unconnected UDP socket on an ephemeral port of the
// given network ("udp", "udp4" or "udp6"). A positive bufSize sizes the
// kernel receive and send buffers.
func ListenUDP(ctx context.Context, network string, bufSize int) (*net.UDPConn, error) {
	lc := net.ListenConfig{}
	if bufSize > 0 && setSocketBuffers != nil {
		lc.Control = func(_, _ string, rc syscall.RawConn) error {
			return setSocketBuffers(rc, bufSize)
		}
	}

	pc, err := lc.ListenPacket(ctx, network, ":0")
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", network, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("listen %s: not a udp socket", network)
	}

	if bufSize > 0 && setSocketBuffers == nil {
		_ = conn.SetReadBuffer(bufSize)
		_ = conn.SetWriteBuffer(bufSize)
	}
	return conn, nil
}
