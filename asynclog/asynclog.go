// Package asynclog implements the double-buffered producer-to-consumer
// pipeline described in the package doc of logbuf and logfile: many
// producer goroutines call Append at low latency; a single consumer
// goroutine drains full buffers into a logfile.LogFile, rolling and
// flushing as needed, and enforces bounded back-pressure with explicit
// drop accounting when producers outrun the disk.
package asynclog

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/corelog/asynclog/logbuf"
	"github.com/corelog/asynclog/logfile"
)

// maxQueuedBuffers is the point at which the consumer's backlog is
// considered overload: everything past the oldest two buffers is
// dropped and a warning line is recorded both on stderr and in-band in
// the log file itself, so downstream readers can see where data was
// lost.
const maxQueuedBuffers = 25

// retainedBuffers is how many buffers the overflow policy (and the
// steady-state drain) keeps around as the new front-end spares.
const retainedBuffers = 2

// Config configures an AsyncLogging pipeline.
type Config struct {
	// Basename is the filesystem path prefix passed to logfile.New.
	Basename string
	// RollSize is the file-size threshold that triggers a roll.
	RollSize int64
	// FlushInterval is both the consumer's periodic wake-up interval
	// and the minimum delay logfile enforces between forced flushes.
	// Defaults to 3 seconds; must be at least 1 second.
	FlushInterval time.Duration
	// CheckEveryN overrides logfile's default of 1024 appends between
	// size/time checks. Zero uses the default.
	CheckEveryN int
	// OnRoll, if set, is forwarded to logfile.OnRoll: it is called with
	// the path of each file closed by a roll.
	OnRoll func(path string)
}

func (c *Config) setDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 3 * time.Second
	}
	if c.FlushInterval < time.Second {
		c.FlushInterval = time.Second
	}
}

// AsyncLogging is the double-buffered front-end/back-end pipeline. The
// zero value is not usable; construct with New.
type AsyncLogging struct {
	cfg Config

	mu        sync.Mutex
	cond      *sync.Cond
	current   *logbuf.Buffer
	spare     *logbuf.Buffer
	fullQueue []*logbuf.Buffer

	running  bool
	startWG  sync.WaitGroup
	consumer sync.WaitGroup
}

// New constructs a pipeline. It does not open any file or start the
// consumer goroutine; call Start for that.
func New(cfg Config) *AsyncLogging {
	cfg.setDefaults()
	a := &AsyncLogging{
		cfg:       cfg,
		current:   logbuf.New(),
		spare:     logbuf.New(),
		fullQueue: make([]*logbuf.Buffer, 0, 16),
	}
	a.current.Bzero()
	a.spare.Bzero()
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Start spawns the consumer goroutine and blocks until it has entered
// its drain loop, so no Append can race the consumer's initial state.
func (a *AsyncLogging) Start() {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()

	a.startWG.Add(1)
	a.consumer.Add(1)
	go a.consumeLoop()
	a.startWG.Wait()
}

// Stop signals the consumer to finish its current drain cycle, perform
// a final flush, and exit, then waits for it to do so. Stop is
// idempotent.
func (a *AsyncLogging) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cond.Signal()
	a.mu.Unlock()

	a.consumer.Wait()
}

// Append delivers one already-formatted record. p must be no larger
// than logbuf.Capacity; a larger record is a precondition violation in
// the external formatter, not something this core defends against (see
// logbuf.Buffer.Append).
func (a *AsyncLogging) Append(p []byte) {
	if len(p) == 0 {
		return
	}

	a.mu.Lock()
	if a.current.Available() > len(p) {
		// Fast path: one compare, one copy, no signal.
		a.current.Append(p)
		a.mu.Unlock()
		return
	}

	// Slow path: the current buffer cannot take this record. Queue it
	// and promote the spare (or allocate, which should be rare: it only
	// happens when the consumer has not yet returned a buffer).
	a.fullQueue = append(a.fullQueue, a.current)
	if a.spare != nil {
		a.current = a.spare
		a.spare = nil
	} else {
		a.current = logbuf.New()
	}
	a.current.Append(p)
	a.cond.Signal()
	a.mu.Unlock()
}

// consumeLoop is the single consumer goroutine: it owns the LogFile
// exclusively and is the only goroutine that ever touches it.
func (a *AsyncLogging) consumeLoop() {
	defer a.consumer.Done()

	opts := []logfile.Option{
		logfile.FlushInterval(a.cfg.FlushInterval),
	}
	if a.cfg.CheckEveryN > 0 {
		opts = append(opts, logfile.CheckEveryN(a.cfg.CheckEveryN))
	}
	if a.cfg.OnRoll != nil {
		opts = append(opts, logfile.OnRoll(a.cfg.OnRoll))
	}

	out, err := logfile.New(a.cfg.Basename, a.cfg.RollSize, opts...)
	if err != nil {
		// The initial file open failing is unrecoverable for this
		// pipeline instance: there is nowhere to send subsequent
		// appends. Mirrors the severity-FATAL convention the source
		// documents for this case.
		log.Fatalf("asynclog: opening initial log file: %v", err)
	}

	a.startWG.Done()

	new1 := logbuf.New()
	new2 := logbuf.New()

	// Each pass pushes the live current buffer (however full) into the
	// queue, promotes new1/new2 into current/spare, writes everything
	// queued, and refills new1/new2 from what it just wrote. Checking
	// a.running at the top (rather than after waking from the wait)
	// means a pass already under way when Stop is called always runs to
	// completion.
	for {
		a.mu.Lock()
		if !a.running {
			a.mu.Unlock()
			break
		}
		if len(a.fullQueue) == 0 {
			a.waitWithTimeout(a.cfg.FlushInterval)
		}
		a.mu.Unlock()

		new1, new2 = a.drainPass(new1, new2, out)
	}

	// Stop() may have flipped running to false in the window between a
	// pass's a.mu.Unlock() above and the next loop-top check: a producer
	// can land bytes in current/fullQueue during that window, and its
	// Append already returned before Stop() was invoked. One more pass,
	// under the same protocol as every other pass, drains them before
	// the final flush; otherwise they would be silently lost and P6
	// (everything appended before Stop() returns is on disk afterward)
	// would not hold.
	new1, new2 = a.drainPass(new1, new2, out)
	_ = new1
	_ = new2

	if err := out.Flush(); err != nil {
		log.Printf("asynclog: final flush failed: %v", err)
	}
}

// drainPass runs one full drain cycle: it swaps the current buffer and
// full queue out from under the producers, writes everything it
// collected to out, and refills new1/new2 from the buffers it just
// wrote so the next pass has spares ready. a.mu must not be held on
// entry.
func (a *AsyncLogging) drainPass(new1, new2 *logbuf.Buffer, out *logfile.LogFile) (*logbuf.Buffer, *logbuf.Buffer) {
	a.mu.Lock()
	a.fullQueue = append(a.fullQueue, a.current)
	a.current = new1
	new1 = nil
	toWrite := a.fullQueue
	a.fullQueue = make([]*logbuf.Buffer, 0, 16)
	if a.spare == nil {
		a.spare = new2
		new2 = nil
	}
	a.mu.Unlock()

	toWrite = a.applyOverflowPolicy(toWrite, out)

	for _, buf := range toWrite {
		if err := out.Append(buf.Bytes()); err != nil {
			log.Printf("asynclog: append failed: %v", err)
		}
	}

	if len(toWrite) > retainedBuffers {
		toWrite = toWrite[:retainedBuffers]
	}
	if new1 == nil {
		new1, toWrite = toWrite[len(toWrite)-1], toWrite[:len(toWrite)-1]
		new1.Reset()
	}
	if new2 == nil {
		new2, toWrite = toWrite[len(toWrite)-1], toWrite[:len(toWrite)-1]
		new2.Reset()
	}

	if err := out.Flush(); err != nil {
		log.Printf("asynclog: flush failed: %v", err)
	}
	return new1, new2
}

// waitWithTimeout waits on the condition variable for at most d,
// coalescing flushes when idle or lightly loaded. Spurious wakeups and
// timeouts are handled identically: the caller re-checks state itself.
// a.mu must be held on entry and is held again on return.
func (a *AsyncLogging) waitWithTimeout(d time.Duration) {
	timer := time.AfterFunc(d, func() {
		a.mu.Lock()
		a.cond.Broadcast()
		a.mu.Unlock()
	})
	a.cond.Wait()
	timer.Stop()
}

// applyOverflowPolicy bounds the consumer's backlog: if more than
// maxQueuedBuffers buffers arrived in one drain pass, it is treated as
// producer overload. A warning line is emitted both to stderr and
// in-band to the log file, and all but the oldest retainedBuffers
// buffers are discarded.
func (a *AsyncLogging) applyOverflowPolicy(toWrite []*logbuf.Buffer, out *logfile.LogFile) []*logbuf.Buffer {
	if len(toWrite) <= maxQueuedBuffers {
		return toWrite
	}

	dropped := len(toWrite) - retainedBuffers
	warning := fmt.Sprintf("Dropped log messages at %s, %d larger buffers\n",
		time.Now().Format("2006/01/02 15:04:05.000000"), dropped)

	fmt.Fprint(os.Stderr, warning)
	out.Append([]byte(warning))

	return toWrite[:retainedBuffers]
}
