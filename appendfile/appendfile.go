// Package appendfile implements unlocked, buffered append-only writes
// to a single open file, the lowest layer of the rolling file appender
// in package logfile.
package appendfile

import (
	"bufio"
	"log"
	"os"
)

// bufferSize is the size of the user-space write buffer that coalesces
// small appends into fewer write(2) syscalls.
const bufferSize = 64 * 1024

// adviseThreshold is how many newly-flushed bytes accumulate before we
// bother asking the kernel to drop them from the page cache; advising
// after every flush would itself be needless syscall overhead.
const adviseThreshold = 16 << 20 // 16 MiB

// AppendFile wraps a single open regular file opened for append, with
// a small buffered writer in front of it. It is not safe for concurrent
// use; callers that need that (package logfile's thread-safe mode)
// serialize access with their own mutex.
type AppendFile struct {
	file        *os.File
	w           *bufio.Writer
	written     int64
	advisedUpTo int64
}

// Open opens path in append mode, creating it if necessary, and
// installs the write buffer.
func Open(path string) (*AppendFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &AppendFile{
		file: f,
		w:    bufio.NewWriterSize(f, bufferSize),
	}, nil
}

// Append writes all of p, looping on short writes. If a write makes no
// progress at all, it logs one diagnostic line to stderr and gives up
// on that call, still counting p as written so a misbehaving disk
// cannot wedge the consumer in a retry storm: the bytes are considered
// lost but accounted for, matching the original FileUtil::append
// policy.
func (a *AppendFile) Append(p []byte) {
	remaining := p
	for len(remaining) > 0 {
		n, err := a.w.Write(remaining)
		if n == 0 {
			if err != nil {
				log.Printf("appendfile: write failed, dropping %d bytes: %v", len(remaining), err)
			} else {
				log.Printf("appendfile: write made no progress, dropping %d bytes", len(remaining))
			}
			break
		}
		remaining = remaining[n:]
	}
	a.written += int64(len(p))
}

// Flush forces the user-space buffer out to the kernel, and on
// platforms that support it, periodically advises the kernel that
// already-durable bytes can be evicted from the page cache.
func (a *AppendFile) Flush() error {
	if err := a.w.Flush(); err != nil {
		return err
	}
	if a.written-a.advisedUpTo >= adviseThreshold {
		a.dropPageCache()
		a.advisedUpTo = a.written
	}
	return nil
}

// WrittenBytes returns the total bytes handed to Append so far
// (including any dropped during a failed write); the value is
// advisory and drives roll policy, not a durability guarantee.
func (a *AppendFile) WrittenBytes() int64 {
	return a.written
}

// Close flushes the write buffer and closes the underlying file.
func (a *AppendFile) Close() error {
	if err := a.w.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
