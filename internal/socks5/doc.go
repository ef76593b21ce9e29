// Package socks5 implements the client side of the SOCKS5 wire protocol
// (RFC 1928) and username/password sub-negotiation (RFC 1929).
//
// Each exchange has a writer and a reader: WriteGreeting/ReadMethodSelection,
// WriteUserPass/ReadUserPassStatus and WriteCommand/ReadCommandReply operate
// on the control connection, while WrapDatagram/UnwrapDatagram frame UDP relay
// payloads. Messages are built and parsed with a fresh Buffer per exchange.
//
// Sequencing the exchanges, timeouts and socket lifetime are left to
// internal/client.
package socks5
