// Package ssh holds the SSH client pieces used when the SOCKS5 proxy is only
// reachable through an SSH server: authentication (key file, agent,
// password), known_hosts handling with trust on first use, and the client
// handshake itself.
//
// Channel multiplexing over the resulting *ssh.Client lives in the dialer
// package.
package ssh
