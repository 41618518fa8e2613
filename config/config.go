// Package config loads the YAML configuration for the asynclogd daemon:
// the pipeline settings passed to asynclog, plus the optional cloud
// upload settings passed to cloudupload.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corelog/asynclog/cloudupload"
)

// PipelineConfig mirrors asynclog.Config in a YAML-friendly shape.
type PipelineConfig struct {
	Basename      string        `yaml:"basename"`
	RollSize      int64         `yaml:"roll_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	CheckEveryN   int           `yaml:"check_every_n"`
}

// CloudConfig mirrors cloudupload.Config, with an Enabled switch: the
// daemon only constructs an Uploader and wires its OnRoll hook when
// this is true. SmallFileThreshold is not exposed here, so it always
// takes cloudupload's default.
type CloudConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Bucket              string        `yaml:"bucket"`
	ObjectPrefix        string        `yaml:"object_prefix"`
	ChunkSize           int           `yaml:"chunk_size"`
	MaxChunksPerCompose int           `yaml:"max_chunks_per_compose"`
	WorkerCount         int           `yaml:"worker_count"`
	QueueSize           int           `yaml:"queue_size"`
	MaxRetries          int           `yaml:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
}

// ToUploadConfig converts the YAML shape into cloudupload.Config.
func (c CloudConfig) ToUploadConfig() cloudupload.Config {
	return cloudupload.Config{
		Bucket:              c.Bucket,
		ObjectPrefix:        c.ObjectPrefix,
		ChunkSize:           c.ChunkSize,
		MaxChunksPerCompose: c.MaxChunksPerCompose,
		WorkerCount:         c.WorkerCount,
		QueueSize:           c.QueueSize,
		MaxRetries:          c.MaxRetries,
		RetryDelay:          c.RetryDelay,
	}
}

// Config is the top-level YAML document read from disk.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cloud    CloudConfig    `yaml:"cloud"`
}

// Default returns a Config anchored at basename whose pipeline settings
// are the same defaults Validate fills in; cloud upload is left
// disabled.
func Default(basename string) Config {
	return Config{
		Pipeline: PipelineConfig{
			Basename:      basename,
			RollSize:      1 << 30, // 1 GiB
			FlushInterval: 3 * time.Second,
			CheckEveryN:   1024,
		},
	}
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and fills in defaults for anything
// left zero.
func (c *Config) Validate() error {
	if c.Pipeline.Basename == "" {
		return fmt.Errorf("config: pipeline.basename is required")
	}
	if c.Pipeline.RollSize <= 0 {
		c.Pipeline.RollSize = 1 << 30
	}
	if c.Pipeline.FlushInterval <= 0 {
		c.Pipeline.FlushInterval = 3 * time.Second
	}
	if c.Pipeline.CheckEveryN <= 0 {
		c.Pipeline.CheckEveryN = 1024
	}

	if c.Cloud.Enabled && c.Cloud.Bucket == "" {
		return fmt.Errorf("config: cloud.bucket is required when cloud.enabled is true")
	}
	return nil
}
