package socks5

import "fmt"

const (
	// Version is the SOCKS protocol version octet.
	Version = 0x05

	// UserPassVersion is the RFC 1929 sub-negotiation version octet.
	UserPassVersion = 0x01

	reserved   = 0x00
	noFragment = 0x00
)

// Method is an authentication method identifier from the greeting.
type Method byte

const (
	MethodNoAuth       Method = 0x00
	MethodUserPass     Method = 0x02
	MethodNoAcceptable Method = 0xff
)

func (m Method) String() string {
	switch m {
	case MethodNoAuth:
		return "no authentication"
	case MethodUserPass:
		return "username/password"
	case MethodNoAcceptable:
		return "no acceptable methods"
	default:
		return fmt.Sprintf("method 0x%02x", byte(m))
	}
}

// Command is a SOCKS5 request command.
type Command byte

const (
	CmdConnect   Command = 0x01
	CmdAssociate Command = 0x03
)

func (c Command) String() string {
	switch c {
	case CmdConnect:
		return "CONNECT"
	case CmdAssociate:
		return "UDP ASSOCIATE"
	default:
		return fmt.Sprintf("command 0x%02x", byte(c))
	}
}
