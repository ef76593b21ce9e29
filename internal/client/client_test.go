package client

import (
	"bytes"
	"context"
	"encoding/pem"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"

	"github.com/die-net/sockslink/internal/dialer"
	"github.com/die-net/sockslink/internal/socks5"
	"github.com/die-net/sockslink/internal/testutil"
)

var (
	_ proxy.ContextDialer = (*Client)(nil)
	_ dialer.Dialer       = (*Client)(nil)
	_ net.Conn            = (*DatagramConn)(nil)
)

// peerResult is what a scripted peer observed from the client.
type peerResult struct {
	got    []byte
	hungUp bool
}

// startScriptedPeer accepts one connection, writes script, half-closes, and
// records everything the client sends until the client hangs up.
func startScriptedPeer(t *testing.T, ctx context.Context, script []byte) (<-chan peerResult, Config) {
	t.Helper()

	res := make(chan peerResult, 1)
	ln, _ := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_ = c.SetDeadline(time.Now().Add(2 * time.Second))
		_, _ = c.Write(script)
		_ = c.(*net.TCPConn).CloseWrite()

		got, err := io.ReadAll(c)
		var ne net.Error
		res <- peerResult{got: got, hungUp: !(errors.As(err, &ne) && ne.Timeout())}
	})
	t.Cleanup(func() { _ = ln.Close() })

	return res, proxyConfig(t, ln.Addr())
}

func proxyConfig(t *testing.T, addr net.Addr) Config {
	t.Helper()

	host, port, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return Config{Host: host, Port: p, ConnectTimeout: time.Second, Timeout: 2 * time.Second}
}

func mustClient(t *testing.T, cfg Config) *Client {
	t.Helper()

	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestConnectWireExchange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		auth   *Auth
		uri    string
		script []byte
		want   []byte
		bound  string
	}{
		{
			name:   "no auth domain",
			uri:    "tcp://example.com:80",
			script: []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x01, 0x7f, 0x00, 0x00, 0x01, 0x04, 0x38},
			want:   append(append([]byte{0x05, 0x01, 0x00, 0x05, 0x01, 0x00, 0x03, 0x0b}, "example.com"...), 0x00, 0x50),
			bound:  "127.0.0.1:1080",
		},
		{
			name: "user pass ipv4",
			auth: &Auth{Username: "user", Password: "pass"},
			uri:  "tcp://192.0.2.10:443",
			script: []byte{
				0x05, 0x02,
				0x01, 0x00,
				0x05, 0x00, 0x00, 0x04, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01, 0x00, 0x16,
			},
			want: []byte{
				0x05, 0x01, 0x02,
				0x01, 0x04, 'u', 's', 'e', 'r', 0x04, 'p', 'a', 's', 's',
				0x05, 0x01, 0x00, 0x01, 192, 0, 2, 10, 0x01, 0xbb,
			},
			bound: "[::1]:22",
		},
		{
			name:   "ipv6 destination",
			uri:    "tcp://[2001:db8::2]:8080",
			script: []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x03, 0x04, 'r', 'e', 'l', 'y', 0x00, 0x01},
			want: []byte{
				0x05, 0x01, 0x00,
				0x05, 0x01, 0x00, 0x04, 0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x02, 0x1f, 0x90,
			},
			bound: "rely:1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			res, cfg := startScriptedPeer(t, ctx, tt.script)
			cfg.Auth = tt.auth
			c := mustClient(t, cfg)

			s, err := c.Connect(ctx, tt.uri, ConnectOptions{})
			require.NoError(t, err)
			require.Equal(t, tt.bound, s.BoundAddr())
			require.NoError(t, s.Close())

			r := <-res
			require.True(t, r.hungUp)
			require.Equal(t, tt.want, r.got)
		})
	}
}

func TestConnectFailures(t *testing.T) {
	t.Parallel()

	refused := []byte{0x05, 0x00, 0x05, 0x05, 0x00, 0x01, 0, 0, 0, 0, 0, 0}

	tests := []struct {
		name   string
		auth   *Auth
		script []byte
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad version in method selection",
			script: []byte{0x04, 0x00},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrInvalidVersion) },
		},
		{
			name:   "no acceptable methods",
			script: []byte{0x05, 0xff},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrNoAcceptableMethods) },
		},
		{
			name:   "server picks user pass unasked",
			script: []byte{0x05, 0x02},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrUnexpectedMethod) },
		},
		{
			name:   "auth rejected",
			auth:   &Auth{Username: "user", Password: "wrong"},
			script: []byte{0x05, 0x02, 0x01, 0x01},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrAuthFailed) },
		},
		{
			name:   "auth bad version",
			auth:   &Auth{Username: "user", Password: "pass"},
			script: []byte{0x05, 0x02, 0x05, 0x00},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrInvalidVersion) },
		},
		{
			name:   "connection refused",
			script: refused,
			check: func(t *testing.T, err error) {
				var rerr *socks5.ReplyError
				require.ErrorAs(t, err, &rerr)
				require.Equal(t, socks5.RepConnectionRefused, rerr.Code)
				require.Equal(t, "socks5: Connection refused", err.Error())
			},
		},
		{
			name:   "unassigned reply code",
			script: []byte{0x05, 0x00, 0x05, 0x42, 0x00, 0x01, 0, 0, 0, 0, 0, 0},
			check: func(t *testing.T, err error) {
				var rerr *socks5.ReplyError
				require.ErrorAs(t, err, &rerr)
				require.Contains(t, err.Error(), "General SOCKS server failure")
			},
		},
		{
			name:   "bad reserved octet",
			script: []byte{0x05, 0x00, 0x05, 0x00, 0x01, 0x01, 0, 0, 0, 0, 0, 0},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrInvalidReserved) },
		},
		{
			name:   "unknown address type",
			script: []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x02, 0, 0, 0, 0, 0, 0},
			check:  func(t *testing.T, err error) { require.ErrorIs(t, err, socks5.ErrUnsupportedAddressType) },
		},
		{
			name:   "truncated reply",
			script: []byte{0x05, 0x00, 0x05, 0x00, 0x00, 0x01, 0x7f},
			check: func(t *testing.T, err error) {
				var terr *socks5.TransportError
				require.ErrorAs(t, err, &terr)
				require.ErrorIs(t, err, io.ErrUnexpectedEOF)
				require.False(t, terr.Timeout())
			},
		},
		{
			name:   "proxy hangs up",
			script: nil,
			check: func(t *testing.T, err error) {
				var terr *socks5.TransportError
				require.ErrorAs(t, err, &terr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			res, cfg := startScriptedPeer(t, ctx, tt.script)
			cfg.Auth = tt.auth
			c := mustClient(t, cfg)

			s, err := c.Connect(ctx, "tcp://example.com:80", ConnectOptions{})
			require.Nil(t, s)
			require.Error(t, err)
			tt.check(t, err)

			// Every failure releases the connection to the proxy.
			require.True(t, (<-res).hungUp)
		})
	}
}

func TestConnectTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	// A proxy that accepts and never speaks.
	ln, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	defer wait()

	cfg := proxyConfig(t, ln.Addr())
	cfg.Timeout = 100 * time.Millisecond
	c := mustClient(t, cfg)

	start := time.Now()
	_, err := c.Connect(ctx, "tcp://example.com:80", ConnectOptions{})
	var terr *socks5.TransportError
	require.ErrorAs(t, err, &terr)
	require.True(t, terr.Timeout())
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestConnectContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ln, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	defer wait()

	cfg := proxyConfig(t, ln.Addr())
	cfg.Timeout = 0
	c := mustClient(t, cfg)

	dctx, dcancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer dcancel()
	_, err := c.Connect(dctx, "tcp://example.com:80", ConnectOptions{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectProxyUnreachable(t *testing.T) {
	t.Parallel()

	// Grab a free port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	cfg := proxyConfig(t, ln.Addr())
	require.NoError(t, ln.Close())

	_, err = mustClient(t, cfg).Connect(context.Background(), "tcp://example.com:80", ConnectOptions{})
	var terr *socks5.TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, "connect to proxy", terr.Op)
}

func TestConnectEndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth *Auth
	}{
		{name: "no auth"},
		{name: "user pass", auth: &Auth{Username: "alice", Password: "s3cret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			echoLn := testutil.StartEchoTCPServer(t, ctx)
			srv := testutil.SOCKS5Server{}
			if tt.auth != nil {
				srv.Username, srv.Password = tt.auth.Username, tt.auth.Password
			}
			proxyLn := testutil.StartSOCKS5Server(t, ctx, srv)

			var logs bytes.Buffer
			cfg := proxyConfig(t, proxyLn.Addr())
			cfg.Auth = tt.auth
			cfg.Logger = log.New(&logs, "", 0)
			c := mustClient(t, cfg)

			s, err := c.Connect(ctx, "tcp://"+echoLn.Addr().String(), ConnectOptions{})
			require.NoError(t, err)
			defer s.Close()

			testutil.AssertEcho(t, s, s, []byte("through the proxy"))

			require.NoError(t, s.CloseWrite())
			rest, err := io.ReadAll(s)
			require.NoError(t, err)
			require.Empty(t, rest)

			require.Contains(t, logs.String(), "method selected")
			require.Contains(t, logs.String(), "established")
		})
	}
}

func TestConnectWrongCredentials(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	proxyLn := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{Username: "alice", Password: "s3cret"})
	cfg := proxyConfig(t, proxyLn.Addr())
	cfg.Auth = &Auth{Username: "alice", Password: "guess"}

	_, err := mustClient(t, cfg).Connect(ctx, "tcp://127.0.0.1:1", ConnectOptions{})
	require.ErrorIs(t, err, socks5.ErrAuthFailed)
}

func TestConnectReplyCodes(t *testing.T) {
	t.Parallel()

	codes := []socks5.ReplyCode{
		socks5.RepServerFailure,
		socks5.RepRuleFailure,
		socks5.RepNetworkUnreachable,
		socks5.RepHostUnreachable,
		socks5.RepConnectionRefused,
		socks5.RepTTLExpired,
		socks5.RepCommandNotSupported,
		socks5.RepAddrTypeNotSupported,
	}

	for _, code := range codes {
		t.Run(code.String(), func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			proxyLn := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{Reply: byte(code)})
			_, err := mustClient(t, proxyConfig(t, proxyLn.Addr())).Connect(ctx, "tcp://example.com:80", ConnectOptions{})

			var rerr *socks5.ReplyError
			require.ErrorAs(t, err, &rerr)
			require.Equal(t, code, rerr.Code)
		})
	}
}

func writeCertPEM(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ca.pem")
	block := &pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestConnectTLS(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	web := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "secure hello")
	}))
	defer web.Close()
	caFile := writeCertPEM(t, web)

	proxyLn := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{})
	c := mustClient(t, proxyConfig(t, proxyLn.Addr()))

	uri := "tls://" + web.Listener.Addr().String()
	opts := ConnectOptions{TLS: dialer.TLSOptions{CAFile: caFile, ServerName: "example.com"}}
	s, err := c.Connect(ctx, uri, opts)
	require.NoError(t, err)
	defer s.Close()

	_, err = io.WriteString(s, "GET / HTTP/1.0\r\nHost: example.com\r\n\r\n")
	require.NoError(t, err)
	resp, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Contains(t, string(resp), "secure hello")

	// Without the CA the handshake fails and nothing leaks.
	_, err = c.Connect(ctx, uri, ConnectOptions{})
	require.Error(t, err)
}

func TestDialContextHTTP(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	web := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "plain hello")
	}))
	defer web.Close()

	proxyLn := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{})
	c := mustClient(t, proxyConfig(t, proxyLn.Addr()))

	hc := &http.Client{Transport: &http.Transport{DialContext: c.DialContext}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, web.URL, nil)
	require.NoError(t, err)
	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "plain hello", string(body))
}

func TestConnectThroughSSH(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	proxyLn := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{})
	sshLn := testutil.StartSSHServer(t, ctx, "user", "pass")

	via, err := dialer.New(dialer.Config{DialTimeout: time.Second}, "ssh://user:pass@"+sshLn.Addr().String())
	require.NoError(t, err)

	cfg := proxyConfig(t, proxyLn.Addr())
	cfg.Dialer = via
	cfg.Timeout = 300 * time.Millisecond
	s, err := mustClient(t, cfg).Connect(ctx, "tcp://"+echoLn.Addr().String(), ConnectOptions{})
	require.NoError(t, err)
	defer s.Close()

	testutil.AssertEcho(t, s, s, []byte("ssh hop"))

	// Per-operation timeouts hold over the ssh channel too.
	_, err = s.Read(make([]byte, 1))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout())
	testutil.AssertEcho(t, s, s, []byte("still there"))
}

func TestChainedSOCKS5(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	first := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{})
	second := testutil.StartSOCKS5Server(t, ctx, testutil.SOCKS5Server{Username: "u", Password: "p"})

	// The first client is the hop the second one dials through.
	hop := mustClient(t, proxyConfig(t, first.Addr()))
	cfg := proxyConfig(t, second.Addr())
	cfg.Auth = &Auth{Username: "u", Password: "p"}
	cfg.Dialer = hop

	s, err := mustClient(t, cfg).Connect(ctx, "tcp://"+echoLn.Addr().String(), ConnectOptions{})
	require.NoError(t, err)
	defer s.Close()

	testutil.AssertEcho(t, s, s, []byte("two hops"))
}
