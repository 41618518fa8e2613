package cloudupload

import (
	"fmt"
	"time"
)

// Config configures an Uploader. Bucket is required; everything else has
// a default suitable for moderate log volume.
type Config struct {
	Bucket       string // GCS bucket name (required)
	ObjectPrefix string // prefix prepended to every uploaded object name

	ChunkSize           int           // bytes per chunk for parallel upload of large files (default 32MiB)
	MaxChunksPerCompose int           // GCS compose() fan-in limit (default 32)
	WorkerCount         int           // concurrent upload goroutines (default 4)
	QueueSize           int           // buffered path queue depth (default 100)
	MaxRetries          int           // per-file upload attempts, including the first (default 3)
	RetryDelay          time.Duration // backoff between retries (default 5s)

	// SmallFileThreshold is the size at or below which a file is uploaded
	// in a single PUT instead of being chunked and composed.
	SmallFileThreshold int64 // default 32MiB, matches ChunkSize by default
}

// Validate checks required fields and fills in defaults for the rest.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("cloudupload: Bucket is required")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 32 << 20
	}
	if c.MaxChunksPerCompose <= 0 {
		c.MaxChunksPerCompose = 32 // GCS server-side limit
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.SmallFileThreshold <= 0 {
		c.SmallFileThreshold = int64(c.ChunkSize)
	}
	return nil
}
