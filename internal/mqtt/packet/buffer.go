package packet

import "fmt"

// Buffer is a fixed-capacity byte region.
//
// It never grows after NewBuffer. Writers either fit completely or fail
// with ErrBufferTooSmall without modifying the contents.
//
// Buffer is not safe for concurrent use; the session owns it exclusively.
type Buffer struct {
	data []byte
	n    int
}

// NewBuffer allocates a buffer that holds at most capacity bytes.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of bytes currently held.
func (b *Buffer) Len() int {
	return b.n
}

// Available returns the remaining capacity.
func (b *Buffer) Available() int {
	return len(b.data) - b.n
}

// Bytes returns the held bytes. The slice is only valid until the next
// Consume, Reset or write.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Free returns the unused tail for a reader to fill. Follow with Commit.
func (b *Buffer) Free() []byte {
	return b.data[b.n:]
}

// Commit marks n bytes of the slice returned by Free as held.
func (b *Buffer) Commit(n int) error {
	if n < 0 || n > b.Available() {
		return fmt.Errorf("%w: commit %d bytes with %d available", ErrBufferTooSmall, n, b.Available())
	}
	b.n += n
	return nil
}

// Append copies p into the buffer, all or nothing.
func (b *Buffer) Append(p []byte) error {
	dst, err := b.reserve(len(p))
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

// Consume drops the first n held bytes and moves the rest to the front.
func (b *Buffer) Consume(n int) {
	if n >= b.n {
		b.n = 0
		return
	}
	copy(b.data, b.data[n:b.n])
	b.n -= n
}

// Reset discards all held bytes.
func (b *Buffer) Reset() {
	b.n = 0
}

// reserve extends the held region by n bytes and returns it for writing.
func (b *Buffer) reserve(n int) ([]byte, error) {
	if n > b.Available() {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d available", ErrBufferTooSmall, n, b.Available(), b.Cap())
	}
	start := b.n
	b.n += n
	return b.data[start:b.n], nil
}
