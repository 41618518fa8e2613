// Package logbuf implements the fixed-capacity byte buffer used as the
// unit of hand-off between producer goroutines and the log file
// consumer: see AsyncLogging in package asynclog.
package logbuf

// Capacity is the nominal size of a Buffer. It is large enough that the
// consumer amortises one write syscall per several thousand log
// records instead of one per record.
const Capacity = 4 << 20 // 4 MiB

// Buffer is a preallocated, fixed-capacity byte buffer reused across
// drain cycles. It is not safe for concurrent use: exactly one
// goroutine may hold a *Buffer at a time, and ownership transfers by
// plain assignment (see asynclog.AsyncLogging, which never keeps two
// live references to the same Buffer across its mutex boundary).
type Buffer struct {
	data []byte
	used int
}

// New allocates a zeroed Buffer of Capacity bytes.
func New() *Buffer {
	return &Buffer{data: make([]byte, Capacity)}
}

// Append copies src into the buffer at the current cursor and advances
// it. Callers must check Available first; Append panics if src would
// overflow the buffer, since that indicates a caller bug rather than a
// recoverable runtime condition.
func (b *Buffer) Append(src []byte) {
	if b.used+len(src) > len(b.data) {
		panic("logbuf: Append would overflow buffer")
	}
	copy(b.data[b.used:], src)
	b.used += len(src)
}

// Available returns the number of bytes that can still be appended.
func (b *Buffer) Available() int {
	return len(b.data) - b.used
}

// Len returns the number of committed bytes.
func (b *Buffer) Len() int {
	return b.used
}

// Bytes returns a view of the committed bytes [0, Len()). The slice
// aliases the buffer's storage and is only valid until the next Reset,
// Bzero, or Append.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.used]
}

// Reset rewinds the cursor to zero without touching the storage, so the
// buffer can accept a fresh Capacity bytes.
func (b *Buffer) Reset() {
	b.used = 0
}

// Bzero zero-fills the entire backing array and resets the cursor.
func (b *Buffer) Bzero() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.used = 0
}
