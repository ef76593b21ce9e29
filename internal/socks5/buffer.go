package socks5

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Buffer is a single-use message cursor: an append-only write region and,
// independently, a forward-only read offset into a fixed byte sequence.
//
// A Buffer is not safe for concurrent use and is never reused across
// exchanges.
type Buffer struct {
	wbuf []byte

	rbuf []byte
	off  int
}

// NewBuffer returns a Buffer that reads from b. Pass nil for a Buffer that is
// only written to.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{rbuf: b}
}

// WriteUint8 appends v as a single octet.
func (b *Buffer) WriteUint8(v int) error {
	if v < 0 || v > math.MaxUint8 {
		return fmt.Errorf("%w: %d exceeds uint8 range (0-255)", ErrRange, v)
	}
	b.wbuf = append(b.wbuf, byte(v))
	return nil
}

// WriteUint16 appends v in network byte order.
func (b *Buffer) WriteUint16(v int) error {
	if v < 0 || v > math.MaxUint16 {
		return fmt.Errorf("%w: %d exceeds uint16 range (0-65535)", ErrRange, v)
	}
	b.wbuf = binary.BigEndian.AppendUint16(b.wbuf, uint16(v))
	return nil
}

// WriteBytes appends p verbatim.
func (b *Buffer) WriteBytes(p []byte) {
	b.wbuf = append(b.wbuf, p...)
}

// WriteString appends s verbatim.
func (b *Buffer) WriteString(s string) {
	b.wbuf = append(b.wbuf, s...)
}

// Len returns the number of bytes written and not yet flushed.
func (b *Buffer) Len() int {
	return len(b.wbuf)
}

// Flush returns the written bytes and resets the write region.
func (b *Buffer) Flush() []byte {
	p := b.wbuf
	b.wbuf = nil
	return p
}

// ReadUint8 reads one octet.
func (b *Buffer) ReadUint8() (uint8, error) {
	if b.Remaining() < 1 {
		return 0, fmt.Errorf("%w: need 1 byte at offset %d, have %d", ErrBounds, b.off, b.Remaining())
	}
	v := b.rbuf[b.off]
	b.off++
	return v, nil
}

// ReadUint16 reads a big-endian uint16.
func (b *Buffer) ReadUint16() (uint16, error) {
	if b.Remaining() < 2 {
		return 0, fmt.Errorf("%w: need 2 bytes at offset %d, have %d", ErrBounds, b.off, b.Remaining())
	}
	v := binary.BigEndian.Uint16(b.rbuf[b.off:])
	b.off += 2
	return v, nil
}

// ReadBytes returns up to n bytes and advances the offset by n. It is a best
// effort read: callers must already have validated n against a length field.
func (b *Buffer) ReadBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	n = min(n, b.Remaining())
	p := b.rbuf[b.off : b.off+n]
	b.off += n
	return p
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.rbuf) - b.off
}
