// Package cloudupload ships rolled log files to Google Cloud Storage. It
// is wired to logfile.LogFile's OnRoll hook: once a file is closed by a
// roll, its path is enqueued here and picked up by a pool of worker
// goroutines, independent of the logging hot path.
package cloudupload

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader accepts closed log file paths and ships them to a GCS bucket
// on a bounded pool of background workers. A full queue drops the
// newly offered path rather than blocking the caller: Enqueue is meant
// to be called from logfile's onRoll hook, which must never block the
// consumer goroutine that owns the active log file.
type Uploader struct {
	cfg   Config
	store objectStore

	pending chan string
	wg      sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewUploader validates cfg, opens a storage client, and starts
// cfg.WorkerCount background upload workers. Call Close to drain the
// queue; the storage client is not closed by Close.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloudupload: opening storage client: %w", err)
	}
	return newUploader(cfg, newGCSStore(client, cfg.Bucket)), nil
}

// newUploader builds an Uploader around an arbitrary objectStore,
// letting tests substitute an in-memory fake for the real bucket.
func newUploader(cfg Config, store objectStore) *Uploader {
	u := &Uploader{
		cfg:     cfg,
		store:   store,
		pending: make(chan string, cfg.QueueSize),
	}
	for i := 0; i < cfg.WorkerCount; i++ {
		u.wg.Add(1)
		go u.worker()
	}
	return u
}

// Enqueue offers path for upload. It never blocks: if every worker is
// busy and the queue is full, the path is dropped and counted, and a
// warning is logged. This is meant to be passed directly as a
// logfile.OnRoll callback.
func (u *Uploader) Enqueue(path string) {
	select {
	case u.pending <- path:
	default:
		u.mu.Lock()
		u.dropped++
		n := u.dropped
		u.mu.Unlock()
		log.Printf("cloudupload: upload queue full, dropping %s (total dropped: %d)", path, n)
	}
}

// Dropped returns how many paths have been dropped due to a full queue.
func (u *Uploader) Dropped() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.dropped
}

// Close closes the queue and waits for queued uploads to drain; ctx
// bounds how long Close waits. The storage client stays open, and an
// Enqueue call after Close panics on the closed queue.
func (u *Uploader) Close(ctx context.Context) error {
	close(u.pending)
	done := make(chan struct{})
	go func() {
		u.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *Uploader) worker() {
	defer u.wg.Done()
	for path := range u.pending {
		if err := u.uploadWithRetry(path); err != nil {
			log.Printf("cloudupload: giving up on %s after %d attempts: %v", path, u.cfg.MaxRetries, err)
		}
	}
}

func (u *Uploader) uploadWithRetry(path string) error {
	var err error
	for attempt := 1; attempt <= u.cfg.MaxRetries; attempt++ {
		if err = u.uploadFile(path); err == nil {
			return nil
		}
		log.Printf("cloudupload: attempt %d/%d for %s failed: %v", attempt, u.cfg.MaxRetries, path, err)
		if attempt < u.cfg.MaxRetries {
			time.Sleep(u.cfg.RetryDelay)
		}
	}
	return err
}

func (u *Uploader) uploadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cloudupload: stat %s: %w", path, err)
	}

	ctx := context.Background()
	object := u.objectName(path)

	if info.Size() <= u.cfg.SmallFileThreshold {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("cloudupload: open %s: %w", path, err)
		}
		defer f.Close()
		return u.store.put(ctx, object, f)
	}
	return u.uploadChunked(ctx, path, object, info.Size())
}

func (u *Uploader) objectName(path string) string {
	name := filepath.Base(path)
	if u.cfg.ObjectPrefix == "" {
		return name
	}
	return u.cfg.ObjectPrefix + name
}
