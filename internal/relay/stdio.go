package relay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Stdio relays between conn and the local pair in/out with Bidirectional.
// EOF on in half-closes conn; EOF from conn ends the local side as well,
// even if in is still open. conn is closed on return.
func Stdio(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	return Bidirectional(ctx, newStdioConn(in, out), conn)
}

// stdioConn presents a reader and a writer as a net.Conn. Reads come from a
// pump goroutine so that closing the conn unblocks a pending Read even when
// in itself cannot be interrupted.
type stdioConn struct {
	out io.Writer

	chunks  chan []byte
	readErr error // set by pump before chunks is closed
	pending []byte

	done      chan struct{}
	closeOnce sync.Once
}

func newStdioConn(in io.Reader, out io.Writer) *stdioConn {
	c := &stdioConn{
		out:    out,
		chunks: make(chan []byte),
		done:   make(chan struct{}),
	}
	go c.pump(in)
	return c
}

func (c *stdioConn) pump(in io.Reader) {
	defer close(c.chunks)
	for {
		buf := make([]byte, copyBufferSize)
		n, err := in.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- buf[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *stdioConn) Read(p []byte) (int, error) {
	if len(c.pending) == 0 {
		select {
		case b, ok := <-c.chunks:
			if !ok {
				return 0, c.readErr
			}
			c.pending = b
		case <-c.done:
			return 0, io.EOF
		}
	}
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *stdioConn) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

// CloseWrite is reached when the remote side is finished. Nothing more will
// be relayed, so the input side ends too.
func (c *stdioConn) CloseWrite() error {
	return c.Close()
}

func (c *stdioConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *stdioConn) LocalAddr() net.Addr  { return stdioAddr{} }
func (c *stdioConn) RemoteAddr() net.Addr { return stdioAddr{} }

func (c *stdioConn) SetDeadline(time.Time) error      { return nil }
func (c *stdioConn) SetReadDeadline(time.Time) error  { return nil }
func (c *stdioConn) SetWriteDeadline(time.Time) error { return nil }

type stdioAddr struct{}

func (stdioAddr) Network() string { return "stdio" }
func (stdioAddr) String() string  { return "stdio" }

// maxDatagram is the largest UDP payload.
const maxDatagram = 64*1024 - 1

// Datagrams sends each line of in as one datagram on conn and writes each
// datagram received as one line to out. After EOF on in it keeps reading
// until linger passes without a datagram. A failure on either side ends the
// call at once. conn is closed on return.
func Datagrams(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer, linger time.Duration) error {
	var (
		inputDone atomic.Bool
		stopping  atomic.Bool
		readerWG  sync.WaitGroup
	)
	readErr := make(chan error, 1)
	received := make(chan struct{}, 1)
	quit := make(chan struct{})

	defer func() {
		stopping.Store(true)
		close(quit)
		_ = conn.Close()
		readerWG.Wait()
	}()

	readerWG.Go(func() {
		readErr <- readDatagrams(conn, out, received, &inputDone, &stopping)
	})

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 4096), maxDatagram)
		for sc.Scan() {
			select {
			case lines <- bytes.Clone(sc.Bytes()):
			case <-quit:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	var lingerC <-chan time.Time
	var lingerTimer *time.Timer
	for {
		select {
		case line := <-lines:
			if _, err := conn.Write(line); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case err := <-scanErr:
			if err != nil {
				return err
			}
			inputDone.Store(true)
			lines, scanErr = nil, nil
			lingerTimer = time.NewTimer(linger)
			defer lingerTimer.Stop()
			lingerC = lingerTimer.C
		case <-received:
			if lingerTimer != nil {
				lingerTimer.Reset(linger)
			}
		case <-lingerC:
			return nil
		case err := <-readErr:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// readDatagrams copies datagrams from conn to out, one per line, until conn
// fails. Read timeouts are tolerated while input is still open.
func readDatagrams(conn net.Conn, out io.Writer, received chan<- struct{}, inputDone, stopping *atomic.Bool) error {
	buf := make([]byte, maxDatagram+1)
	for {
		n, err := conn.Read(buf[:maxDatagram])
		if err != nil {
			switch {
			case stopping.Load():
				return nil
			case isTimeout(err) && !inputDone.Load():
				continue
			case isTimeout(err):
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		buf[n] = '\n'
		if _, err := out.Write(buf[:n+1]); err != nil {
			return err
		}
		select {
		case received <- struct{}{}:
		default:
		}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
