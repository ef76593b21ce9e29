// Package client drives SOCKS5 sessions.
//
// A Client performs the fixed exchange sequence against one proxy (greeting,
// method selection, optional username/password authentication, command,
// reply) and hands back either a Stream for CONNECT or a DatagramConn for
// UDP ASSOCIATE. Each call uses a fresh connection to the proxy; nothing is
// pooled or retried.
package client
