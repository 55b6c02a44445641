package frame

import (
	"bytes"
	"encoding/binary"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	t.Run("prefixes big-endian length", func(t *testing.T) {
		got, err := Encode([]byte("abc"))
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c'}, got)
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		_, err := Encode(nil)
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})
}

func TestDecoder_RoundTripChunked(t *testing.T) {
	const ceiling = 4096
	rng := rand.New(rand.NewSource(7))

	var stream []byte
	var payloads [][]byte
	for _, size := range []int{1, 2, 3, 4, 5, 255, 256, 1024, ceiling} {
		payload := make([]byte, size)
		rng.Read(payload)
		payloads = append(payloads, payload)

		var err error
		stream, err = AppendFrame(stream, payload)
		require.NoError(t, err)
	}

	for _, chunk := range []int{1, 2, 3, 7, 64, len(stream)} {
		d := NewDecoder(ceiling)
		var got [][]byte
		for rest := stream; len(rest) > 0; {
			n := min(chunk, len(rest))
			out, err := d.Feed(rest[:n])
			require.NoError(t, err)
			got = append(got, out...)
			rest = rest[n:]
		}

		assert.Equal(t, payloads, got, "chunk size %d", chunk)
		assert.Equal(t, AwaitingLength, d.State())
	}
}

func TestDecoder_RandomChunks(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		payload := make([]byte, 1+rng.Intn(2048))
		rng.Read(payload)
		encoded, err := Encode(payload)
		require.NoError(t, err)

		d := NewDecoder(2048)
		var got [][]byte
		for rest := encoded; len(rest) > 0; {
			n := rng.Intn(len(rest) + 1)
			out, err := d.Feed(rest[:n])
			require.NoError(t, err)
			got = append(got, out...)
			rest = rest[n:]
		}

		require.Len(t, got, 1)
		assert.Equal(t, payload, got[0])
	}
}

func TestDecoder_PartialState(t *testing.T) {
	d := NewDecoder(16)

	out, err := d.Feed([]byte{0, 0})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, AwaitingLength, d.State())
	assert.Equal(t, 2, d.Remaining())

	out, err = d.Feed([]byte{0, 5, 'h', 'e'})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, AwaitingPayload, d.State())
	assert.Equal(t, 3, d.Remaining())

	out, err = d.Feed(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, AwaitingPayload, d.State())

	out, err = d.Feed([]byte("llo"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("hello")}, out)
	assert.Equal(t, AwaitingLength, d.State())
}

func TestDecoder_InvalidLength(t *testing.T) {
	t.Run("zero length", func(t *testing.T) {
		_, err := NewDecoder(16).Feed([]byte{0, 0, 0, 0})
		assert.ErrorIs(t, err, ErrEmptyFrame)
	})

	t.Run("over ceiling", func(t *testing.T) {
		_, err := NewDecoder(16).Feed([]byte{0, 0, 0, 17})
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("at ceiling is accepted", func(t *testing.T) {
		header := binary.BigEndian.AppendUint32(nil, 16)
		_, err := NewDecoder(16).Feed(header)
		assert.NoError(t, err)
	})

	t.Run("frames before the bad header are still returned", func(t *testing.T) {
		good, err := Encode([]byte("ok"))
		require.NoError(t, err)
		out, err := NewDecoder(16).Feed(append(good, 0xff, 0xff, 0xff, 0xff))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
		assert.Equal(t, [][]byte{[]byte("ok")}, out)
	})
}

func TestReadFrame(t *testing.T) {
	t.Run("reads consecutive frames", func(t *testing.T) {
		var buf bytes.Buffer
		for _, p := range []string{"one", "two"} {
			f, err := Encode([]byte(p))
			require.NoError(t, err)
			buf.Write(f)
		}

		first, err := ReadFrame(&buf, 64)
		require.NoError(t, err)
		assert.Equal(t, "one", string(first))
		second, err := ReadFrame(&buf, 64)
		require.NoError(t, err)
		assert.Equal(t, "two", string(second))

		_, err = ReadFrame(&buf, 64)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("truncated payload", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 4, 'a'}), 64)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("oversize", func(t *testing.T) {
		_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 1, 0}), 64)
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestMaxPayload(t *testing.T) {
	assert.Equal(t, 8192*64, MaxPayload(8192, 64))
}
