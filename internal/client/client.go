package client

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/die-net/sockslink/internal/dialer"
	"github.com/die-net/sockslink/internal/socks5"
)

// Client opens SOCKS5 sessions through one proxy. It holds no per-session
// state and is safe for concurrent use; every call opens its own connection
// to the proxy.
type Client struct {
	cfg    Config
	method socks5.Method
	dialer dialer.Dialer
}

// ConnectOptions adjusts a single Connect call.
type ConnectOptions struct {
	// TLS configures the handshake for tls:// destinations.
	TLS dialer.TLSOptions
}

// New validates cfg and returns a Client. Username/password authentication
// is offered if cfg.Auth is set, no authentication otherwise.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Auth != nil {
		auth := *cfg.Auth
		cfg.Auth = &auth
	}

	c := &Client{cfg: cfg, method: socks5.MethodNoAuth, dialer: cfg.Dialer}
	if cfg.Auth != nil {
		c.method = socks5.MethodUserPass
	}
	if c.dialer == nil {
		c.dialer = dialer.NewDirectDialer(dialer.Config{DialTimeout: cfg.ConnectTimeout})
	}
	return c, nil
}

// Connect asks the proxy to open a TCP connection to uri, which is
// tcp://host:port or tls://host:port, and returns the tunnel. For tls:// a
// TLS client handshake with host runs inside the tunnel before returning.
func (c *Client) Connect(ctx context.Context, uri string, opts ConnectOptions) (*Stream, error) {
	dst, err := parseDestination(uri, "tcp", "tls")
	if err != nil {
		return nil, err
	}
	if _, err := socks5.ParseAddr(dst.host); err != nil {
		return nil, err
	}

	raw, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	conn := dialer.WithIOTimeout(raw, c.cfg.Timeout)

	rep, err := c.negotiate(ctx, conn, socks5.CmdConnect, dst.host, dst.port)
	if err != nil {
		return nil, err
	}

	if dst.scheme == "tls" {
		c.logf("starting tls with %s", dst.host)
		conn, err = dialer.UpgradeTLS(ctx, conn, dst.host, opts.TLS)
		if err != nil {
			return nil, err
		}
	}

	return &Stream{Conn: conn, bound: rep}, nil
}

// Associate asks the proxy for a UDP relay and returns a datagram channel
// whose writes go to uri (udp://host:port) and whose reads yield the
// payloads the relay sends back. The channel lives as long as the control
// connection to the proxy.
func (c *Client) Associate(ctx context.Context, uri string) (*DatagramConn, error) {
	dst, err := parseDestination(uri, "udp")
	if err != nil {
		return nil, err
	}
	headerLen, err := socks5.DatagramHeaderLen(dst.host, dst.port)
	if err != nil {
		return nil, err
	}

	raw, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := c.negotiate(ctx, dialer.WithIOTimeout(raw, c.cfg.Timeout), socks5.CmdAssociate, "0.0.0.0", 0)
	if err != nil {
		return nil, err
	}

	relay, err := c.relayAddr(ctx, rep)
	if err != nil {
		_ = raw.Close()
		return nil, err
	}

	network := "udp6"
	if relay.Addr().Is4() {
		network = "udp4"
	}
	pc, err := dialer.ListenUDP(ctx, network, c.cfg.UDPBufferSize)
	if err != nil {
		_ = raw.Close()
		return nil, &socks5.TransportError{Op: "open relay socket", Err: err}
	}

	// Negotiation left a deadline on the control connection; the watcher
	// blocks on it indefinitely.
	_ = raw.SetDeadline(time.Time{})

	c.logf("udp relay at %s for %s", relay, net.JoinHostPort(dst.host, strconv.Itoa(dst.port)))
	return newDatagramConn(raw, pc, relay, dst.host, dst.port, headerLen, c.cfg.Timeout), nil
}

// DialContext connects to address through the proxy: tcp networks use
// Connect and udp networks use Associate. It lets a Client stand in for
// proxy.ContextDialer and dialer.Dialer.
func (c *Client) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
		s, err := c.Connect(ctx, "tcp://"+address, ConnectOptions{})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "udp", "udp4", "udp6":
		d, err := c.Associate(ctx, "udp://"+address)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("socks5 client: unsupported network %q", network)
	}
}

// open connects to the proxy within ConnectTimeout.
func (c *Client) open(ctx context.Context) (net.Conn, error) {
	dctx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	addr := c.cfg.proxyAddr()
	c.logf("connecting to proxy %s", addr)
	conn, err := c.dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &socks5.TransportError{Op: "connect to proxy", Err: err}
	}
	return conn, nil
}

// negotiate runs greeting, optional authentication and one command on conn,
// strictly in that order. conn is closed on any failure. Canceling ctx
// closes conn to unblock the exchange in progress.
func (c *Client) negotiate(ctx context.Context, conn net.Conn, cmd socks5.Command, host string, port int) (socks5.Reply, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})

	rep, err := c.exchange(conn, cmd, host, port)
	if !stop() {
		return socks5.Reply{}, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		c.logf("%s %s failed: %v", cmd, net.JoinHostPort(host, strconv.Itoa(port)), err)
		return socks5.Reply{}, err
	}
	return rep, nil
}

func (c *Client) exchange(conn net.Conn, cmd socks5.Command, host string, port int) (socks5.Reply, error) {
	if err := socks5.WriteGreeting(conn, c.method); err != nil {
		return socks5.Reply{}, err
	}
	c.logf("greeting sent, offering %s", c.method)

	if err := socks5.ReadMethodSelection(conn, c.method); err != nil {
		return socks5.Reply{}, err
	}
	c.logf("method selected: %s", c.method)

	if c.method == socks5.MethodUserPass {
		if err := socks5.WriteUserPass(conn, c.cfg.Auth.Username, c.cfg.Auth.Password); err != nil {
			return socks5.Reply{}, err
		}
		c.logf("credentials sent for %q", c.cfg.Auth.Username)
		if err := socks5.ReadUserPassStatus(conn); err != nil {
			return socks5.Reply{}, err
		}
		c.logf("authenticated")
	}

	if err := socks5.WriteCommand(conn, cmd, host, port); err != nil {
		return socks5.Reply{}, err
	}
	c.logf("%s %s sent", cmd, net.JoinHostPort(host, strconv.Itoa(port)))

	rep, err := socks5.ReadCommandReply(conn)
	if err != nil {
		return socks5.Reply{}, err
	}
	c.logf("established, bound %s", rep.Address())
	return rep, nil
}

// relayAddr turns the ASSOCIATE reply into a UDP destination. An unspecified
// address means "same host as the proxy"; a domain name is resolved.
func (c *Client) relayAddr(ctx context.Context, rep socks5.Reply) (netip.AddrPort, error) {
	var ip netip.Addr
	switch {
	case rep.Bound.Type == socks5.AddrDomain:
		resolved, err := c.resolve(ctx, rep.Bound.Name)
		if err != nil {
			return netip.AddrPort{}, err
		}
		ip = resolved
	case rep.Bound.IP.IsUnspecified():
		resolved, err := c.resolve(ctx, c.cfg.Host)
		if err != nil {
			return netip.AddrPort{}, err
		}
		ip = resolved
	default:
		ip = rep.Bound.IP
	}
	return netip.AddrPortFrom(ip.Unmap(), rep.Port), nil
}

func (c *Client) resolve(ctx context.Context, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip, nil
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.Addr{}, &socks5.TransportError{Op: "resolve relay " + host, Err: err}
	}
	if len(ips) == 0 {
		return netip.Addr{}, &socks5.TransportError{Op: "resolve relay " + host, Err: &net.DNSError{Err: "no addresses", Name: host, IsNotFound: true}}
	}
	return ips[0], nil
}

func (c *Client) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf("socks5 %s: "+format, append([]any{c.cfg.proxyAddr()}, args...)...)
	}
}
