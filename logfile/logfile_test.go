package logfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMakeFilenameFormat(t *testing.T) {
	now := time.Date(2026, 7, 31, 23, 59, 1, 0, time.UTC)
	got := MakeFilename("/var/log/app", now)

	hostname, _ := os.Hostname()
	want := "/var/log/app.20260731-235901." + hostname + "." + itoa(os.Getpid()) + ".log"
	require.Equal(t, want, got)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestRollOnSize(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "roll")

	// Filenames only have second resolution (spec §6), so a clock that
	// advances per call keeps each roll's file distinct and the test
	// deterministic instead of racing the wall clock.
	clock := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lf, err := New(base, 100, withClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
	require.NoError(t, err)

	chunk := make([]byte, 40)
	for i := range chunk {
		chunk[i] = 'x'
	}

	for i := 0; i < 4; i++ { // 160 bytes, crosses the 100-byte roll size
		require.NoError(t, lf.Append(chunk))
	}
	require.NoError(t, lf.Flush())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2, "expected at least 2 rolled files")
}

func TestRollDeclinedOnClockRegression(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "clock")

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := t0
	lf, err := New(base, 1<<30, withClock(func() time.Time { return clock }))
	require.NoError(t, err)

	// Move clock backwards relative to lastRoll and force a roll attempt.
	clock = t0.Add(-time.Hour)
	rolled, err := lf.RollFile()
	require.NoError(t, err)
	require.False(t, rolled, "expected RollFile to decline on clock regression")
}

func TestDayBoundaryRoll(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "day")

	clock := time.Date(2026, 7, 31, 23, 59, 59, 0, time.UTC)
	lf, err := New(base, 1<<30,
		withClock(func() time.Time { return clock }),
		CheckEveryN(1))
	require.NoError(t, err)

	require.NoError(t, lf.Append([]byte("before midnight\n")))

	clock = clock.Add(2 * time.Second) // crosses into 2026-08-01

	require.NoError(t, lf.Append([]byte("after midnight\n")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(entries), 2, "expected a new file after the day boundary")
}

func TestOnRollNotifiesClosedFile(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "notify")

	var notified []string
	lf, err := New(base, 50, OnRoll(func(path string) {
		notified = append(notified, path)
	}))
	require.NoError(t, err)

	chunk := make([]byte, 60)
	require.NoError(t, lf.Append(chunk))

	require.Len(t, notified, 1)
}

// TestThreadSafeConcurrentAppend exercises the ThreadSafe option, the
// one standalone-use configuration (as opposed to the asynclog-embedded
// mode, where the consumer goroutine is already the sole writer and
// ThreadSafe is never set): many goroutines call Append concurrently
// and every line must land whole, with none lost or torn.
func TestThreadSafeConcurrentAppend(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "concurrent")

	lf, err := New(base, 1<<30, ThreadSafe())
	require.NoError(t, err)

	const writers = 16
	const perWriter = 200
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(id int) {
			defer wg.Done()
			line := []byte(fmt.Sprintf("writer-%d-line\n", id))
			for i := 0; i < perWriter; i++ {
				require.NoError(t, lf.Append(line))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, lf.Flush())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var data []byte
	for _, e := range entries {
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		data = append(data, b...)
	}

	// every line must be intact: no interleaved/torn writes from
	// concurrent callers sharing one AppendFile under the mutex.
	for w := 0; w < writers; w++ {
		want := fmt.Sprintf("writer-%d-line\n", w)
		got := countOccurrences(string(data), want)
		require.Equalf(t, perWriter, got, "writer %d: expected %d intact lines, found %d", w, perWriter, got)
	}
}

func countOccurrences(s, substr string) int {
	count := 0
	for {
		i := indexOf(s, substr)
		if i < 0 {
			return count
		}
		count++
		s = s[i+len(substr):]
	}
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
