package socks5

// ReplyCode is the REP field of a command reply.
type ReplyCode byte

const (
	RepSuccess ReplyCode = iota
	RepServerFailure
	RepRuleFailure
	RepNetworkUnreachable
	RepHostUnreachable
	RepConnectionRefused
	RepTTLExpired
	RepCommandNotSupported
	RepAddrTypeNotSupported
)

var replyText = [...]string{
	RepSuccess:              "Succeeded",
	RepServerFailure:        "General SOCKS server failure",
	RepRuleFailure:          "Connection not allowed by ruleset",
	RepNetworkUnreachable:   "Network unreachable",
	RepHostUnreachable:      "Host unreachable",
	RepConnectionRefused:    "Connection refused",
	RepTTLExpired:           "TTL expired",
	RepCommandNotSupported:  "Command not supported",
	RepAddrTypeNotSupported: "Address type not supported",
}

// String returns the RFC 1928 description of r. Unassigned codes describe as
// a general server failure.
func (r ReplyCode) String() string {
	if int(r) < len(replyText) {
		return replyText[r]
	}
	return replyText[RepServerFailure]
}
