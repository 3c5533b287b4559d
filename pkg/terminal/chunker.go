package terminal

import "unicode/utf8"

// InputChunker queues keystrokes and hands them out in bounded chunks.
// It is owned by a single Session and is not safe for concurrent use.
type InputChunker struct {
	size    int
	pending []byte
}

// NewInputChunker returns a chunker emitting at most size bytes per chunk.
func NewInputChunker(size int) *InputChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &InputChunker{size: size}
}

// Append adds data at the tail of the queue.
func (c *InputChunker) Append(data []byte) {
	c.pending = append(c.pending, data...)
}

// Next removes and returns at most size bytes from the head of the queue.
// A chunk never ends inside a UTF-8 sequence unless a single sequence is
// longer than size. It returns false when the queue is empty.
func (c *InputChunker) Next() ([]byte, bool) {
	if len(c.pending) == 0 {
		return nil, false
	}

	n := min(c.size, len(c.pending))
	if n < len(c.pending) {
		cut := n
		for cut > 0 && !utf8.RuneStart(c.pending[cut]) {
			cut--
		}
		if cut > 0 {
			n = cut
		}
	}
	chunk := make([]byte, n)
	copy(chunk, c.pending[:n])

	c.pending = c.pending[n:]
	if len(c.pending) == 0 {
		c.pending = nil
	}
	return chunk, true
}

// Len returns the number of queued bytes.
func (c *InputChunker) Len() int {
	return len(c.pending)
}

// Size returns the maximum chunk size.
func (c *InputChunker) Size() int {
	return c.size
}

// Reset discards all queued input.
func (c *InputChunker) Reset() {
	c.pending = nil
}
