package socks5

import (
	"fmt"
	"io"
	"net"
	"strconv"
)

// Reply is a decoded command reply. For CONNECT the bound endpoint is
// informational; for UDP ASSOCIATE it is the relay datagrams must be sent to.
type Reply struct {
	Code  ReplyCode
	Bound Addr
	Port  uint16
}

// Address returns the bound endpoint as host:port.
func (r Reply) Address() string {
	return net.JoinHostPort(r.Bound.String(), strconv.Itoa(int(r.Port)))
}

// WriteCommand sends a CONNECT or UDP ASSOCIATE request for host:port. An
// invalid host is rejected before anything is written.
func WriteCommand(w io.Writer, cmd Command, host string, port int) error {
	b := NewBuffer(nil)
	if err := b.WriteUint8(Version); err != nil {
		return err
	}
	if err := b.WriteUint8(int(cmd)); err != nil {
		return err
	}
	if err := b.WriteUint8(reserved); err != nil {
		return err
	}
	if err := AppendAddr(b, host); err != nil {
		return err
	}
	if err := b.WriteUint16(port); err != nil {
		return err
	}
	return flushTo(w, b, "write request")
}

// ReadCommandReply reads a command reply and returns the bound endpoint. A
// non-success reply code is returned as a *ReplyError.
func ReadCommandReply(r io.Reader) (Reply, error) {
	var p [4]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return Reply{}, transportErr("read reply", err)
	}

	hdr := NewBuffer(p[:])
	ver, _ := hdr.ReadUint8()
	rep, _ := hdr.ReadUint8()
	rsv, _ := hdr.ReadUint8()
	atyp, _ := hdr.ReadUint8()

	if ver != Version {
		return Reply{}, fmt.Errorf("%w: got 0x%02x", ErrInvalidVersion, ver)
	}
	if code := ReplyCode(rep); code != RepSuccess {
		return Reply{Code: code}, &ReplyError{Code: code}
	}
	if rsv != reserved {
		return Reply{}, fmt.Errorf("%w: got 0x%02x", ErrInvalidReserved, rsv)
	}

	b, err := readAddrPort(r, atyp)
	if err != nil {
		return Reply{}, err
	}
	bound, err := ReadAddr(atyp, b)
	if err != nil {
		return Reply{}, err
	}
	port, err := b.ReadUint16()
	if err != nil {
		return Reply{}, err
	}
	return Reply{Code: RepSuccess, Bound: bound, Port: port}, nil
}
