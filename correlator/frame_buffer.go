package correlator

import (
	"bytes"
)

// DefaultTerminator delimits frames when no terminator is configured.
var DefaultTerminator = []byte{'\n'}

// FrameBuffer accumulates raw bytes and slices them into terminator delimited
// frames. Frames include their terminator and are returned in arrival order;
// bytes after the last terminator stay buffered for the next call.
//
// The way input is split into chunks never changes the produced frames.
//
// FrameBuffer is not safe for concurrent use.
type FrameBuffer struct {
	term    []byte
	maxSize int

	buf  []byte
	head int // start of unconsumed bytes
	scan int // no terminator starts in buf[head:scan]

	// discarding is set after an oversized tail was dropped; input is skipped
	// up to and including the next terminator. window holds the last
	// len(term)-1 skipped bytes so a terminator split across chunks is found.
	discarding bool
	window     []byte
}

// NewFrameBuffer creates a FrameBuffer. An empty terminator selects
// DefaultTerminator. maxSize limits the unterminated tail in bytes; 0 means
// unbounded.
func NewFrameBuffer(terminator []byte, maxSize int) *FrameBuffer {
	if len(terminator) == 0 {
		terminator = DefaultTerminator
	}
	if maxSize < 0 {
		maxSize = 0
	}

	return &FrameBuffer{
		term:    bytes.Clone(terminator),
		maxSize: maxSize,
	}
}

// Terminator returns the frame terminator.
func (b *FrameBuffer) Terminator() []byte {
	return b.term
}

// Receive appends data and returns every frame that is now complete.
//
// The error is ErrFrameTooLong when the unterminated tail grew past the
// maximum size and was discarded; frames completed before the tail are still
// returned.
func (b *FrameBuffer) Receive(data []byte) ([][]byte, error) {
	err := b.Write(data)

	var frames [][]byte
	for {
		frame, ok := b.Next()
		if !ok {
			break
		}
		frames = append(frames, frame)
	}

	return frames, err
}

// Write appends data without extracting frames. Use Next to pull them.
func (b *FrameBuffer) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if b.discarding {
		data = b.skip(data)
		if data == nil {
			return nil
		}
	}

	b.compact()
	b.buf = append(b.buf, data...)

	return b.checkTail()
}

// Next returns the oldest complete frame. The returned slice is a copy owned
// by the caller.
func (b *FrameBuffer) Next() ([]byte, bool) {
	idx := bytes.Index(b.buf[b.scan:], b.term)
	if idx < 0 {
		b.scan = max(b.head, len(b.buf)-len(b.term)+1)
		return nil, false
	}

	end := b.scan + idx + len(b.term)
	frame := bytes.Clone(b.buf[b.head:end])
	b.head = end
	b.scan = end

	if b.head == len(b.buf) {
		b.buf = b.buf[:0]
		b.head = 0
		b.scan = 0
	}

	return frame, true
}

// Buffered returns the number of bytes held, complete frames included.
func (b *FrameBuffer) Buffered() int {
	return len(b.buf) - b.head
}

// Reset drops all buffered bytes.
func (b *FrameBuffer) Reset() {
	b.buf = b.buf[:0]
	b.head = 0
	b.scan = 0
	b.discarding = false
	b.window = b.window[:0]
}

// compact moves unconsumed bytes to the front once at least half of the
// buffer has been consumed.
func (b *FrameBuffer) compact() {
	if b.head == 0 || b.head < len(b.buf)/2 {
		return
	}

	n := copy(b.buf, b.buf[b.head:])
	b.buf = b.buf[:n]
	b.scan -= b.head
	b.head = 0
}

// checkTail drops the unterminated tail when it exceeds maxSize.
func (b *FrameBuffer) checkTail() error {
	if b.maxSize == 0 {
		return nil
	}

	tailStart := b.head
	if idx := bytes.LastIndex(b.buf[b.head:], b.term); idx >= 0 {
		tailStart = b.head + idx + len(b.term)
	}

	if len(b.buf)-tailStart <= b.maxSize {
		return nil
	}

	b.window = append(b.window[:0], lastN(b.buf[tailStart:], len(b.term)-1)...)
	b.buf = b.buf[:tailStart]
	b.scan = min(b.scan, tailStart)
	b.discarding = true

	return ErrFrameTooLong
}

// skip consumes data up to and including the next terminator. It returns the
// bytes that follow it, or nil when the terminator was not found.
func (b *FrameBuffer) skip(data []byte) []byte {
	joined := append(bytes.Clone(b.window), data...)
	idx := bytes.Index(joined, b.term)
	if idx < 0 {
		b.window = append(b.window[:0], lastN(joined, len(b.term)-1)...)
		return nil
	}

	b.discarding = false
	b.window = b.window[:0]
	rest := joined[idx+len(b.term):]
	if len(rest) == 0 {
		return nil
	}

	return rest
}

func lastN(p []byte, n int) []byte {
	if n <= 0 {
		return nil
	}
	if len(p) <= n {
		return p
	}

	return p[len(p)-n:]
}
