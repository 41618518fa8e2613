// Package logfile implements the policy layer over appendfile.AppendFile:
// timestamped filenames, size- and day-boundary rolling, and periodic
// flushing. It can serialize its own access (standalone use) or leave
// that to a caller that is already single-threaded (package asynclog,
// whose consumer goroutine is the sole writer).
package logfile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corelog/asynclog/appendfile"
)

// RollPeriod is the wall-clock period a single file may span before a
// day-boundary roll is due.
const RollPeriod = 24 * time.Hour

// defaultCheckEveryN is how many appends pass between size/time checks
// when the caller does not specify one.
const defaultCheckEveryN = 1024

// LogFile generates timestamped log files under basename, rolling the
// active file when its size crosses rollSize or the UTC day changes,
// and flushing at least every flushInterval under steady load.
type LogFile struct {
	basename      string
	rollSize      int64
	flushInterval time.Duration
	checkEveryN   int

	// onRoll, if set, is called with the path of the file that was just
	// closed by a successful roll. LogFile calls it synchronously from
	// roll, so it must not block (see package cloudupload, whose
	// non-blocking Enqueue is the intended consumer).
	onRoll func(path string)

	mu          *sync.Mutex // nil unless ThreadSafe mode is requested
	appendCount int
	periodStart time.Time
	lastRoll    time.Time
	lastFlush   time.Time
	file        *appendfile.AppendFile
	filePath    string

	now func() time.Time // injectable for tests
}

// Option configures a LogFile at construction time.
type Option func(*LogFile)

// ThreadSafe makes Append safe to call from multiple goroutines by
// serializing it with an internal mutex. Omit this when the caller
// already guarantees single-writer access, such as asynclog's
// consumer goroutine, to avoid a pointless lock.
func ThreadSafe() Option {
	return func(lf *LogFile) { lf.mu = &sync.Mutex{} }
}

// CheckEveryN overrides the default of 1024 appends between size/time
// checks.
func CheckEveryN(n int) Option {
	return func(lf *LogFile) {
		if n > 0 {
			lf.checkEveryN = n
		}
	}
}

// FlushInterval overrides the minimum wall-clock seconds between
// forced flushes at a check point.
func FlushInterval(d time.Duration) Option {
	return func(lf *LogFile) {
		if d > 0 {
			lf.flushInterval = d
		}
	}
}

// OnRoll registers a non-blocking hook invoked with the path of each
// file closed by a roll.
func OnRoll(f func(path string)) Option {
	return func(lf *LogFile) { lf.onRoll = f }
}

// withClock overrides the wall clock; used by tests that need to drive
// day-boundary rolls deterministically.
func withClock(now func() time.Time) Option {
	return func(lf *LogFile) { lf.now = now }
}

// New creates a LogFile and opens its first file. rollSize must be > 0.
func New(basename string, rollSize int64, opts ...Option) (*LogFile, error) {
	if rollSize <= 0 {
		return nil, fmt.Errorf("logfile: rollSize must be > 0, got %d", rollSize)
	}
	lf := &LogFile{
		basename:      basename,
		rollSize:      rollSize,
		flushInterval: 3 * time.Second,
		checkEveryN:   defaultCheckEveryN,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(lf)
	}

	if dir := filepath.Dir(basename); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("logfile: creating directory %s: %w", dir, err)
		}
	}

	if _, err := lf.roll(); err != nil {
		return nil, fmt.Errorf("logfile: initial open failed: %w", err)
	}
	return lf, nil
}

// Append writes p to the active file, rolling or flushing as the
// check-point policy in appendUnlocked dictates.
func (lf *LogFile) Append(p []byte) error {
	if lf.mu != nil {
		lf.mu.Lock()
		defer lf.mu.Unlock()
	}
	return lf.appendUnlocked(p)
}

func (lf *LogFile) appendUnlocked(p []byte) error {
	lf.file.Append(p)

	if lf.file.WrittenBytes() >= lf.rollSize {
		_, err := lf.roll()
		return err
	}

	lf.appendCount++
	if lf.appendCount < lf.checkEveryN {
		return nil
	}
	lf.appendCount = 0

	now := lf.now()
	thisPeriod := dayFloor(now)
	if !thisPeriod.Equal(lf.periodStart) {
		_, err := lf.roll()
		return err
	}
	if now.Sub(lf.lastFlush) >= lf.flushInterval {
		if err := lf.Flush(); err != nil {
			return err
		}
		lf.lastFlush = now
	}
	return nil
}

// Flush forces the active file to the kernel.
func (lf *LogFile) Flush() error {
	return lf.file.Flush()
}

// RollFile closes the active file (if any) and opens a new one, unless
// the wall clock has not advanced past the last roll, in which case it
// declines and returns false.
func (lf *LogFile) RollFile() (bool, error) {
	if lf.mu != nil {
		lf.mu.Lock()
		defer lf.mu.Unlock()
	}
	return lf.roll()
}

func (lf *LogFile) roll() (bool, error) {
	now := lf.now()
	if !lf.lastRoll.IsZero() && !now.After(lf.lastRoll) {
		return false, nil
	}

	path := MakeFilename(lf.basename, now)
	next, err := appendfile.Open(path)
	if err != nil {
		return false, err
	}

	prevFile, prevPath := lf.file, lf.filePath
	if prevFile != nil {
		if err := prevFile.Flush(); err != nil {
			log.Printf("logfile: flushing %s on roll: %v", prevPath, err)
		}
		if err := prevFile.Close(); err != nil {
			log.Printf("logfile: closing %s on roll: %v", prevPath, err)
		}
	}

	lf.file = next
	lf.filePath = path
	lf.lastRoll = now
	lf.lastFlush = now
	lf.periodStart = dayFloor(now)
	lf.appendCount = 0

	if lf.onRoll != nil && prevFile != nil {
		// Only notify for files that were actually closed by this roll;
		// the very first open on construction has nothing to ship yet.
		lf.onRoll(prevPath)
	}
	return true, nil
}

func dayFloor(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MakeFilename derives the timestamped log filename for basename at
// now: "<basename>.<YYYYmmdd-HHMMSS>.<hostname>.<pid>.log", with the
// timestamp in UTC and the hostname truncated at 63 bytes.
func MakeFilename(basename string, now time.Time) string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknownhost"
	}
	if len(hostname) > 63 {
		hostname = hostname[:63]
	}
	return fmt.Sprintf("%s.%s.%s.%d.log",
		basename,
		now.UTC().Format("20060102-150405"),
		hostname,
		os.Getpid(),
	)
}
