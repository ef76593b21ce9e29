package dialer

import (
	"net"
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup and TCP connect to the next hop.
	DialTimeout time.Duration
	// NegotiationTimeout bounds upstream handshakes (HTTP CONNECT, SSH,
	// WebSocket upgrade). Zero means no deadline.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	SSHKeyPath        string
	SSHKnownHostsPath string
}
