package dialer

import (
	"context"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// sshChannelConn is one direct-tcpip channel with working deadlines.
// x/crypto/ssh channels reject SetDeadline, so a pump goroutine feeds Read
// and an expired read deadline leaves the channel usable. An expired write
// deadline closes the channel, as a blocked channel write cannot be
// abandoned otherwise.
type sshChannelConn struct {
	net.Conn
	stop func() bool

	chunks  chan []byte
	readErr error // set by pump before chunks is closed
	pending []byte
	readMu  sync.Mutex

	mu            sync.Mutex
	readDeadline  time.Time
	writeDeadline time.Time
	deadlineMoved chan struct{}

	writeExpired atomic.Bool
	closed       chan struct{}
	closeOnce    sync.Once
}

func newSSHChannelConn(ctx context.Context, ch net.Conn) *sshChannelConn {
	c := &sshChannelConn{
		Conn:          ch,
		chunks:        make(chan []byte),
		deadlineMoved: make(chan struct{}, 1),
		closed:        make(chan struct{}),
	}
	c.stop = context.AfterFunc(ctx, func() {
		_ = c.shutdown()
	})
	go c.pump()
	return c
}

func (c *sshChannelConn) pump() {
	defer close(c.chunks)
	for {
		buf := make([]byte, 32*1024)
		n, err := c.Conn.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *sshChannelConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		select {
		case <-c.closed:
			return 0, net.ErrClosed
		default:
		}

		c.mu.Lock()
		dl := c.readDeadline
		c.mu.Unlock()

		var timer *time.Timer
		var expired <-chan time.Time
		if !dl.IsZero() {
			d := time.Until(dl)
			if d <= 0 {
				return 0, deadlineErr("read")
			}
			timer = time.NewTimer(d)
			expired = timer.C
		}

		b, ok, err := c.next(expired)
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, c.readErr
		}
		c.pending = b
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// next waits for the pump's next chunk. ok is false once the pump is done;
// a nil chunk with ok true means the deadline moved.
func (c *sshChannelConn) next(expired <-chan time.Time) ([]byte, bool, error) {
	select {
	case b, ok := <-c.chunks:
		return b, ok, nil
	case <-expired:
		return nil, true, deadlineErr("read")
	case <-c.deadlineMoved:
		return nil, true, nil
	case <-c.closed:
		return nil, true, net.ErrClosed
	}
}

func (c *sshChannelConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	dl := c.writeDeadline
	c.mu.Unlock()

	if dl.IsZero() {
		return c.Conn.Write(p)
	}
	d := time.Until(dl)
	if d <= 0 {
		return 0, deadlineErr("write")
	}
	t := time.AfterFunc(d, func() {
		c.writeExpired.Store(true)
		_ = c.shutdown()
	})
	n, err := c.Conn.Write(p)
	if !t.Stop() && c.writeExpired.Load() {
		return n, deadlineErr("write")
	}
	return n, err
}

func (c *sshChannelConn) SetDeadline(t time.Time) error {
	c.setDeadlines(t, true, true)
	return nil
}

func (c *sshChannelConn) SetReadDeadline(t time.Time) error {
	c.setDeadlines(t, true, false)
	return nil
}

func (c *sshChannelConn) SetWriteDeadline(t time.Time) error {
	c.setDeadlines(t, false, true)
	return nil
}

func (c *sshChannelConn) setDeadlines(t time.Time, read, write bool) {
	c.mu.Lock()
	if read {
		c.readDeadline = t
	}
	if write {
		c.writeDeadline = t
	}
	c.mu.Unlock()

	if read {
		// Wake a blocked Read so it re-arms against the new deadline.
		select {
		case c.deadlineMoved <- struct{}{}:
		default:
		}
	}
}

// Close closes the channel and releases the context hook.
func (c *sshChannelConn) Close() error {
	c.stop()
	return c.shutdown()
}

func (c *sshChannelConn) shutdown() error {
	err := net.ErrClosed
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.Conn.Close()
	})
	return err
}

func (c *sshChannelConn) Unwrap() net.Conn {
	return c.Conn
}

func deadlineErr(op string) error {
	return &net.OpError{Op: op, Net: "ssh", Err: os.ErrDeadlineExceeded}
}
