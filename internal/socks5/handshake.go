package socks5

import (
	"fmt"
	"io"
)

// WriteGreeting sends the method-selection greeting offering exactly one
// method.
func WriteGreeting(w io.Writer, m Method) error {
	b := NewBuffer(nil)
	if err := b.WriteUint8(Version); err != nil {
		return err
	}
	if err := b.WriteUint8(1); err != nil {
		return err
	}
	if err := b.WriteUint8(int(m)); err != nil {
		return err
	}
	return flushTo(w, b, "write greeting")
}

// ReadMethodSelection reads the server's method choice and checks it against
// the single method that was offered.
func ReadMethodSelection(r io.Reader, expected Method) error {
	var p [2]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return transportErr("read method selection", err)
	}

	b := NewBuffer(p[:])
	ver, err := b.ReadUint8()
	if err != nil {
		return err
	}
	method, err := b.ReadUint8()
	if err != nil {
		return err
	}

	if ver != Version {
		return fmt.Errorf("%w: got 0x%02x", ErrInvalidVersion, ver)
	}
	if Method(method) == MethodNoAcceptable {
		return ErrNoAcceptableMethods
	}
	if Method(method) != expected {
		return fmt.Errorf("%w: expected %q, got %q", ErrUnexpectedMethod, expected, Method(method))
	}
	return nil
}

func flushTo(w io.Writer, b *Buffer, op string) error {
	if _, err := w.Write(b.Flush()); err != nil {
		return transportErr(op, err)
	}
	return nil
}
