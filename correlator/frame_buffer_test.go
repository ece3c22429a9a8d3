package correlator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, b *FrameBuffer, chunks ...string) []string {
	t.Helper()

	var out []string
	for _, chunk := range chunks {
		frames, err := b.Receive([]byte(chunk))
		require.NoError(t, err)
		for _, f := range frames {
			out = append(out, string(f))
		}
	}

	return out
}

func TestFrameBuffer_Receive(t *testing.T) {
	b := NewFrameBuffer([]byte("\r"), 0)

	assert.Empty(t, collect(t, b, "OK A"))
	assert.Equal(t, 4, b.Buffered())

	assert.Equal(t, []string{"OK A Z\r", "BAD\r"}, collect(t, b, " Z\rBAD\rNO"))
	assert.Equal(t, 2, b.Buffered())

	assert.Equal(t, []string{"NO B A\r"}, collect(t, b, " B A\r"))
	assert.Zero(t, b.Buffered())
}

func TestFrameBuffer_DefaultTerminator(t *testing.T) {
	b := NewFrameBuffer(nil, 0)
	assert.Equal(t, []byte("\n"), b.Terminator())
	assert.Equal(t, []string{"a\n", "\n", "b\n"}, collect(t, b, "a\n\nb\nc"))
}

func TestFrameBuffer_ChunkBoundaryIndependence(t *testing.T) {
	stream := "OK A Z\r\nNOW A A B A\r\n\r\nBAD\r\nNO B A\r\ntail-without-end\r"
	term := []byte("\r\n")

	whole := collect(t, NewFrameBuffer(term, 0), stream)
	require.Len(t, whole, 5)

	// every single split point
	for i := 0; i <= len(stream); i++ {
		got := collect(t, NewFrameBuffer(term, 0), stream[:i], stream[i:])
		assert.Equal(t, whole, got, "split at %d", i)
	}

	// byte by byte
	b := NewFrameBuffer(term, 0)
	var got []string
	for i := 0; i < len(stream); i++ {
		got = append(got, collect(t, b, stream[i:i+1])...)
	}
	assert.Equal(t, whole, got)

	// random chunkings
	rng := rand.New(rand.NewSource(7))
	for j := 0; j < 200; j++ {
		b := NewFrameBuffer(term, 0)
		var chunks []string
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assert.Equal(t, whole, collect(t, b, chunks...), "chunks %q", chunks)
	}
}

func TestFrameBuffer_NextReturnsCopy(t *testing.T) {
	b := NewFrameBuffer([]byte("\r"), 0)
	require.NoError(t, b.Write([]byte("AB\rCD\r")))

	first, ok := b.Next()
	require.True(t, ok)
	first[0] = 'X'

	second, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, "CD\r", string(second))

	_, ok = b.Next()
	assert.False(t, ok)
}

func TestFrameBuffer_Reset(t *testing.T) {
	b := NewFrameBuffer([]byte("\r"), 0)
	collect(t, b, "partial")
	b.Reset()

	assert.Zero(t, b.Buffered())
	assert.Equal(t, []string{"x\r"}, collect(t, b, "x\r"))
}

func TestFrameBuffer_MaxSize(t *testing.T) {
	b := NewFrameBuffer([]byte("\r"), 4)

	frames, err := b.Receive([]byte("OK\rtoolong"))
	require.ErrorIs(t, err, ErrFrameTooLong)
	assert.Equal(t, [][]byte{[]byte("OK\r")}, frames)
	assert.Zero(t, b.Buffered())

	// the rest of the oversized frame is skipped up to its terminator
	assert.Empty(t, collect(t, b, "still", "going"))
	assert.Equal(t, []string{"BAD\r"}, collect(t, b, "end\rBAD\r"))
}

func TestFrameBuffer_MaxSizeSplitTerminator(t *testing.T) {
	b := NewFrameBuffer([]byte("\r\n"), 3)

	_, err := b.Receive([]byte("abcdef\r"))
	require.ErrorIs(t, err, ErrFrameTooLong)

	assert.Equal(t, []string{"ok\r\n"}, collect(t, b, "\nok\r\n"))
}

func TestFrameBuffer_MaxSizeCompleteFramesPass(t *testing.T) {
	b := NewFrameBuffer([]byte("\r"), 4)

	// only the unterminated tail is limited
	assert.Equal(t, []string{"0123456789\r"}, collect(t, b, "0123456789\r"))
}
