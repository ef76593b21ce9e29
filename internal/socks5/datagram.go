package socks5

import "fmt"

// MaxDatagramHeader is the largest UDP request header: RSV(2) FRAG(1)
// ATYP(1) LEN(1) a 255 byte domain and PORT(2).
const MaxDatagramHeader = 262

// WrapDatagram prefixes payload with the UDP request header addressed to
// host:port.
func WrapDatagram(host string, port int, payload []byte) ([]byte, error) {
	b := NewBuffer(nil)
	if err := writeDatagramHeader(b, host, port); err != nil {
		return nil, err
	}
	b.WriteBytes(payload)
	return b.Flush(), nil
}

// DatagramHeaderLen returns the header size WrapDatagram produces for
// host:port.
func DatagramHeaderLen(host string, port int) (int, error) {
	b := NewBuffer(nil)
	if err := writeDatagramHeader(b, host, port); err != nil {
		return 0, err
	}
	return b.Len(), nil
}

func writeDatagramHeader(b *Buffer, host string, port int) error {
	if err := b.WriteUint8(reserved); err != nil {
		return err
	}
	if err := b.WriteUint8(reserved); err != nil {
		return err
	}
	if err := b.WriteUint8(noFragment); err != nil {
		return err
	}
	if err := AppendAddr(b, host); err != nil {
		return err
	}
	return b.WriteUint16(port)
}

// UnwrapDatagram validates the UDP header of p, skips the embedded address
// and returns up to n payload bytes. A datagram carries no length of its own,
// so the caller states how much payload it expects.
func UnwrapDatagram(p []byte, n int) ([]byte, error) {
	b := NewBuffer(p)

	for range 2 {
		rsv, err := b.ReadUint8()
		if err != nil {
			return nil, err
		}
		if rsv != reserved {
			return nil, fmt.Errorf("%w: got 0x%02x", ErrInvalidReserved, rsv)
		}
	}

	frag, err := b.ReadUint8()
	if err != nil {
		return nil, err
	}
	if frag != noFragment {
		return nil, fmt.Errorf("%w: got 0x%02x", ErrInvalidFragment, frag)
	}

	atyp, err := b.ReadUint8()
	if err != nil {
		return nil, err
	}
	if _, err := ReadAddr(atyp, b); err != nil {
		return nil, err
	}
	if _, err := b.ReadUint16(); err != nil {
		return nil, err
	}

	return b.ReadBytes(n), nil
}
