package dialer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// TargetHeader carries the address a WebSocket tunnel endpoint should
// connect to. Endpoints with a fixed backend may ignore it.
const TargetHeader = "X-Tunnel-Target"

// WebSocketDialer reaches the SOCKS5 server through a WebSocket tunnel
// endpoint that relays binary messages to a TCP backend.
type WebSocketDialer struct {
	cfg    Config
	url    string
	direct Dialer
}

// NewWebSocketDialer constructs a dialer for the ws:// or wss:// endpoint u.
func NewWebSocketDialer(cfg Config, u *url.URL) (Dialer, error) {
	if u == nil {
		return nil, errors.New("websocket dialer: missing url")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("websocket dialer: unsupported scheme: %q", u.Scheme)
	}
	return &WebSocketDialer{cfg: cfg, url: u.String(), direct: NewDirectDialer(cfg)}, nil
}

func (f *WebSocketDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("websocket dial %s %s: unsupported network", network, address)
	}

	d := ws.Dialer{
		Timeout: f.cfg.NegotiationTimeout,
		Header:  ws.HandshakeHeaderHTTP(http.Header{TargetHeader: []string{address}}),
		NetDial: f.direct.DialContext,
	}

	conn, br, _, err := d.Dial(ctx, f.url)
	if err != nil {
		return nil, fmt.Errorf("websocket dial %s: %w", f.url, err)
	}
	return newWSConn(conn, br), nil
}

// wsConn presents a client WebSocket as a byte stream. Each Write is one
// binary message; Read drains messages in order regardless of boundaries.
type wsConn struct {
	net.Conn
	rw io.ReadWriter

	readMu  sync.Mutex
	pending []byte

	writeMu sync.Mutex
}

func newWSConn(conn net.Conn, br *bufio.Reader) *wsConn {
	c := &wsConn{Conn: conn, rw: conn}
	if br != nil {
		// The handshake reader may already hold the first frames.
		c.rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}
	return c
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		msg, op, err := wsutil.ReadServerData(c.rw)
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return 0, io.EOF
			}
			return 0, err
		}
		if op != ws.OpBinary && op != ws.OpText {
			continue
		}
		c.pending = msg
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := wsutil.WriteClientMessage(c.Conn, ws.OpBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	_ = wsutil.WriteClientMessage(c.Conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.writeMu.Unlock()
	return c.Conn.Close()
}
