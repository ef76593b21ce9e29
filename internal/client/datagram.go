package client

import (
	"errors"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/die-net/sockslink/internal/socks5"
)

// ErrControlClosed is returned by datagram I/O once the proxy has closed the
// TCP connection that keeps the UDP association alive.
var ErrControlClosed = errors.New("socks5: udp association ended: control connection closed")

// DatagramConn is a UDP association with a fixed destination. Each Write
// sends one datagram; each Read returns the payload of one datagram from
// the relay, truncated to len(p).
type DatagramConn struct {
	control   net.Conn
	pc        *net.UDPConn
	relay     netip.AddrPort
	dst       destAddr
	headerLen int
	timeout   time.Duration

	controlDone chan struct{}
	closeOnce   sync.Once
	closeErr    error
	closed      chan struct{}
}

func newDatagramConn(control net.Conn, pc *net.UDPConn, relay netip.AddrPort, host string, port, headerLen int, timeout time.Duration) *DatagramConn {
	d := &DatagramConn{
		control:     control,
		pc:          pc,
		relay:       relay,
		dst:         destAddr{host: host, port: port},
		headerLen:   headerLen,
		timeout:     timeout,
		controlDone: make(chan struct{}),
		closed:      make(chan struct{}),
	}
	go d.watchControl()
	return d
}

// watchControl waits for the proxy to end the association. Nothing is
// expected on the control connection after the reply, so anything read is
// discarded.
func (d *DatagramConn) watchControl() {
	_, _ = io.Copy(io.Discard, d.control)
	close(d.controlDone)
	// Unblock a Read waiting on the relay.
	_ = d.pc.Close()
}

func (d *DatagramConn) checkOpen() error {
	select {
	case <-d.closed:
		return net.ErrClosed
	default:
	}
	select {
	case <-d.controlDone:
		return ErrControlClosed
	default:
	}
	return nil
}

// Read receives one datagram from the relay and copies up to len(p) bytes
// of its payload into p. Datagrams from any other source are dropped.
func (d *DatagramConn) Read(p []byte) (int, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}

	buf := make([]byte, socks5.MaxDatagramHeader+len(p))
	for {
		if d.timeout > 0 {
			_ = d.pc.SetReadDeadline(time.Now().Add(d.timeout))
		}
		n, from, err := d.pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			if cerr := d.checkOpen(); cerr != nil {
				return 0, cerr
			}
			return 0, &socks5.TransportError{Op: "read datagram", Err: err}
		}
		if from.Addr().Unmap() != d.relay.Addr() || from.Port() != d.relay.Port() {
			continue
		}

		payload, err := socks5.UnwrapDatagram(buf[:n], len(p))
		if err != nil {
			return 0, err
		}
		return copy(p, payload), nil
	}
}

// Write sends p as one datagram to the destination and reports len(p) on
// success; the SOCKS header is not counted.
func (d *DatagramConn) Write(p []byte) (int, error) {
	if err := d.checkOpen(); err != nil {
		return 0, err
	}

	pkt, err := socks5.WrapDatagram(d.dst.host, d.dst.port, p)
	if err != nil {
		return 0, err
	}
	if d.timeout > 0 {
		_ = d.pc.SetWriteDeadline(time.Now().Add(d.timeout))
	}
	n, err := d.pc.WriteToUDPAddrPort(pkt, d.relay)
	if err != nil {
		if cerr := d.checkOpen(); cerr != nil {
			return 0, cerr
		}
		return 0, &socks5.TransportError{Op: "write datagram", Err: err}
	}
	return n - d.headerLen, nil
}

// Close ends the association: the relay socket and the control connection
// are both closed.
func (d *DatagramConn) Close() error {
	d.closeOnce.Do(func() {
		close(d.closed)
		d.closeErr = errors.Join(ignoreClosed(d.pc.Close()), ignoreClosed(d.control.Close()))
	})
	return d.closeErr
}

// ignoreClosed drops net.ErrClosed; the watcher may have closed the socket
// already.
func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// RelayAddr returns the UDP endpoint of the proxy's relay.
func (d *DatagramConn) RelayAddr() netip.AddrPort {
	return d.relay
}

func (d *DatagramConn) LocalAddr() net.Addr {
	return d.pc.LocalAddr()
}

// RemoteAddr returns the destination datagrams are addressed to.
func (d *DatagramConn) RemoteAddr() net.Addr {
	return d.dst
}

// SetDeadline and friends apply to the relay socket. A non-zero Timeout
// replaces them before every operation.
func (d *DatagramConn) SetDeadline(t time.Time) error {
	return d.pc.SetDeadline(t)
}

func (d *DatagramConn) SetReadDeadline(t time.Time) error {
	return d.pc.SetReadDeadline(t)
}

func (d *DatagramConn) SetWriteDeadline(t time.Time) error {
	return d.pc.SetWriteDeadline(t)
}

// destAddr is a destination that may be a domain name.
type destAddr struct {
	host string
	port int
}

func (a destAddr) Network() string { return "udp" }

func (a destAddr) String() string {
	return net.JoinHostPort(a.host, strconv.Itoa(a.port))
}
