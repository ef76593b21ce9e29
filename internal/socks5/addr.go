package socks5

import (
	"fmt"
	"io"
	"net/netip"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// AddrType is the ATYP octet that tags an encoded address.
type AddrType byte

const (
	AddrIPv4   AddrType = 0x01
	AddrDomain AddrType = 0x03
	AddrIPv6   AddrType = 0x04
)

const maxDomainLen = 255

// Addr is a destination or bound address in exactly one of its three wire
// forms. IP is set for AddrIPv4 and AddrIPv6, Name for AddrDomain.
type Addr struct {
	Type AddrType
	IP   netip.Addr
	Name string
}

// ParseAddr classifies host as an IPv4 literal, an IPv6 literal or a domain
// name, in that order of preference.
func ParseAddr(host string) (Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		if ip.Zone() != "" {
			return Addr{}, &AddressError{Host: host}
		}
		if ip.Is4() {
			return Addr{Type: AddrIPv4, IP: ip}, nil
		}
		return Addr{Type: AddrIPv6, IP: ip}, nil
	}

	if !validHostname(host) {
		return Addr{}, &AddressError{Host: host}
	}
	return Addr{Type: AddrDomain, Name: host}, nil
}

// validHostname applies STD3 label syntax and DNS length limits.
func validHostname(host string) bool {
	if host == "" || len(host) > maxDomainLen {
		return false
	}
	if _, ok := dns.IsDomainName(host); !ok {
		return false
	}
	if _, err := idna.Lookup.ToASCII(host); err != nil {
		return false
	}
	return true
}

// String returns the canonical textual form: dotted quad, RFC 5952 IPv6 or
// the domain name as sent.
func (a Addr) String() string {
	if a.Type == AddrDomain {
		return a.Name
	}
	return a.IP.String()
}

func (a Addr) appendTo(b *Buffer) error {
	if err := b.WriteUint8(int(a.Type)); err != nil {
		return err
	}
	switch a.Type {
	case AddrIPv4:
		ip := a.IP.As4()
		b.WriteBytes(ip[:])
	case AddrIPv6:
		ip := a.IP.As16()
		b.WriteBytes(ip[:])
	case AddrDomain:
		if err := b.WriteUint8(len(a.Name)); err != nil {
			return err
		}
		b.WriteString(a.Name)
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, byte(a.Type))
	}
	return nil
}

// AppendAddr encodes host as ATYP followed by the address payload.
func AppendAddr(b *Buffer, host string) error {
	a, err := ParseAddr(host)
	if err != nil {
		return err
	}
	return a.appendTo(b)
}

// ReadAddr decodes an address payload of type atyp from b.
func ReadAddr(atyp byte, b *Buffer) (Addr, error) {
	switch t := AddrType(atyp); t {
	case AddrIPv4:
		if b.Remaining() < 4 {
			return Addr{}, fmt.Errorf("%w: truncated IPv4 address", ErrBounds)
		}
		return Addr{Type: t, IP: netip.AddrFrom4([4]byte(b.ReadBytes(4)))}, nil
	case AddrIPv6:
		if b.Remaining() < 16 {
			return Addr{}, fmt.Errorf("%w: truncated IPv6 address", ErrBounds)
		}
		return Addr{Type: t, IP: netip.AddrFrom16([16]byte(b.ReadBytes(16)))}, nil
	case AddrDomain:
		n, err := b.ReadUint8()
		if err != nil {
			return Addr{}, err
		}
		if b.Remaining() < int(n) {
			return Addr{}, fmt.Errorf("%w: truncated domain name", ErrBounds)
		}
		return Addr{Type: t, Name: string(b.ReadBytes(int(n)))}, nil
	default:
		return Addr{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, atyp)
	}
}

// readAddrPort reads exactly the address and port that follow an ATYP octet
// on a stream and returns them as a Buffer positioned at the address.
func readAddrPort(r io.Reader, atyp byte) (*Buffer, error) {
	var prefix []byte
	var n int
	switch AddrType(atyp) {
	case AddrIPv4:
		n = 4 + 2
	case AddrIPv6:
		n = 16 + 2
	case AddrDomain:
		var l [1]byte
		if _, err := io.ReadFull(r, l[:]); err != nil {
			return nil, transportErr("read domain length", err)
		}
		prefix = l[:]
		n = int(l[0]) + 2
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedAddressType, atyp)
	}

	p := make([]byte, len(prefix)+n)
	copy(p, prefix)
	if _, err := io.ReadFull(r, p[len(prefix):]); err != nil {
		return nil, transportErr("read bound address", err)
	}
	return NewBuffer(p), nil
}
