package dialer

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// SOCKS5ProxyDialer reaches the target SOCKS5 server through another SOCKS5
// hop.
type SOCKS5ProxyDialer struct {
	proxyAddr string
	hop       proxy.ContextDialer
}

// NewSOCKS5ProxyDialer constructs a dialer that chains through the SOCKS5
// server at proxyAddr. Username/password auth is used if username is set.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) (Dialer, error) {
	var auth *proxy.Auth
	if username != "" {
		auth = &proxy.Auth{User: username, Password: password}
	}

	forward := &net.Dialer{Timeout: cfg.DialTimeout, KeepAliveConfig: cfg.KeepAlive}
	d, err := proxy.SOCKS5("tcp", proxyAddr, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy dialer: %T does not support contexts", d)
	}

	return &SOCKS5ProxyDialer{proxyAddr: proxyAddr, hop: cd}, nil
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.hop.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy dial %s via %s: %w", address, f.proxyAddr, err)
	}
	return c, nil
}
