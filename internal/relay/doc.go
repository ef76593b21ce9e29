// Package relay moves bytes between an established proxy connection and
// the local side: another connection, or the process's stdin and stdout.
package relay
