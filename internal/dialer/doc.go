// Package dialer opens the transports a SOCKS5 session runs over.
//
// A Dialer reaches the SOCKS5 server either directly or through another hop
// (HTTP CONNECT, a SOCKS5 chain, SSH, or a WebSocket tunnel). The package also
// owns the rest of the socket plumbing the protocol engine treats as external:
// per-operation I/O timeouts, TLS upgrade of an established stream, and UDP
// sockets for relay traffic.
package dialer
