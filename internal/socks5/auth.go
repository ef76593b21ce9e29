package socks5

import (
	"fmt"
	"io"
)

const userPassSuccess = 0x00

// WriteUserPass sends the RFC 1929 username/password request. Credentials
// must each be 1 to 255 bytes; nothing is written otherwise.
func WriteUserPass(w io.Writer, username, password string) error {
	if err := checkCredential("username", username); err != nil {
		return err
	}
	if err := checkCredential("password", password); err != nil {
		return err
	}

	b := NewBuffer(nil)
	if err := b.WriteUint8(UserPassVersion); err != nil {
		return err
	}
	if err := b.WriteUint8(len(username)); err != nil {
		return err
	}
	b.WriteString(username)
	if err := b.WriteUint8(len(password)); err != nil {
		return err
	}
	b.WriteString(password)
	return flushTo(w, b, "write credentials")
}

func checkCredential(field, s string) error {
	if len(s) == 0 || len(s) > 255 {
		return fmt.Errorf("%w: %s length %d not in 1-255", ErrRange, field, len(s))
	}
	return nil
}

// ReadUserPassStatus reads the sub-negotiation status reply.
func ReadUserPassStatus(r io.Reader) error {
	var p [2]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return transportErr("read auth status", err)
	}

	b := NewBuffer(p[:])
	ver, err := b.ReadUint8()
	if err != nil {
		return err
	}
	status, err := b.ReadUint8()
	if err != nil {
		return err
	}

	if ver != UserPassVersion {
		return fmt.Errorf("%w: got 0x%02x", ErrInvalidVersion, ver)
	}
	if status != userPassSuccess {
		return fmt.Errorf("%w: status 0x%02x", ErrAuthFailed, status)
	}
	return nil
}
