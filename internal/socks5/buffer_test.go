package socks5

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferUint8RoundTrip(t *testing.T) {
	w := NewBuffer(nil)
	for v := 0; v <= 255; v++ {
		require.NoError(t, w.WriteUint8(v))
	}
	require.Equal(t, 256, w.Len())

	r := NewBuffer(w.Flush())
	for v := 0; v <= 255; v++ {
		got, err := r.ReadUint8()
		require.NoError(t, err)
		require.Equal(t, uint8(v), got)
	}
	require.Zero(t, w.Len())
}

func TestBufferUint16RoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, 80, 255, 256, 1080, 0x1234, 65535} {
		w := NewBuffer(nil)
		require.NoError(t, w.WriteUint16(v))
		p := w.Flush()
		require.Equal(t, []byte{byte(v >> 8), byte(v)}, p)

		got, err := NewBuffer(p).ReadUint16()
		require.NoError(t, err)
		require.Equal(t, uint16(v), got)
	}
}

func TestBufferWriteRange(t *testing.T) {
	tests := []struct {
		name  string
		write func(*Buffer) error
	}{
		{name: "uint8 negative", write: func(b *Buffer) error { return b.WriteUint8(-1) }},
		{name: "uint8 overflow", write: func(b *Buffer) error { return b.WriteUint8(256) }},
		{name: "uint16 negative", write: func(b *Buffer) error { return b.WriteUint16(-1) }},
		{name: "uint16 overflow", write: func(b *Buffer) error { return b.WriteUint16(65536) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(nil)
			require.ErrorIs(t, tt.write(b), ErrRange)
			require.Zero(t, b.Len(), "failed write must not append")
		})
	}
}

func TestBufferReadBounds(t *testing.T) {
	b := NewBuffer([]byte{0x01})
	_, err := b.ReadUint16()
	require.ErrorIs(t, err, ErrBounds)

	v, err := b.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, uint8(1), v)

	_, err = b.ReadUint8()
	require.ErrorIs(t, err, ErrBounds)
}

func TestBufferReadBytesBestEffort(t *testing.T) {
	b := NewBuffer([]byte("abcdef"))
	require.Equal(t, []byte("abc"), b.ReadBytes(3))
	require.Equal(t, []byte("def"), b.ReadBytes(10))
	require.Zero(t, b.Remaining())
	require.Empty(t, b.ReadBytes(1))

	_, err := b.ReadUint8()
	require.ErrorIs(t, err, ErrBounds)
}

func TestBufferReadBytesHugeCount(t *testing.T) {
	b := NewBuffer([]byte("abcdef"))
	b.ReadBytes(2)
	require.Equal(t, []byte("cdef"), b.ReadBytes(math.MaxInt))
	require.Zero(t, b.Remaining())
}

func TestBufferWriteBytes(t *testing.T) {
	b := NewBuffer(nil)
	b.WriteString("user")
	b.WriteBytes([]byte{0x00, 0xff})
	require.Equal(t, 6, b.Len())
	require.Equal(t, []byte("user\x00\xff"), b.Flush())
	require.Nil(t, b.Flush())
}
