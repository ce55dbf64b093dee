/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/wandb/weave-sub009/weave/retry"
	"github.com/wandb/weave-sub009/weave/traceserver/batch"
)

// Config holds the client settings that can come from the environment.
type Config struct {
	// Project scopes every call and object the client writes.
	Project string `env:"WEAVE_PROJECT"`

	// Disabled turns every op into a passthrough while keeping the client
	// installed.
	Disabled bool `env:"WEAVE_DISABLED, default=false"`

	// Parallelism is the default number of concurrent examples in an
	// evaluation.
	Parallelism int `env:"WEAVE_PARALLELISM, default=10"`

	// BatchSize is the number of queued writes that triggers a flush. Zero
	// writes every call through synchronously.
	BatchSize int `env:"WEAVE_BATCH_SIZE, default=50"`

	// FlushInterval bounds how long a write waits in the batch queue.
	FlushInterval time.Duration `env:"WEAVE_FLUSH_INTERVAL, default=2s"`

	// Retry controls how batched writes are retried.
	Retry retry.Config `env:", prefix=WEAVE_FLUSH_"`

	// RedactKeys replaces the default set of sensitive names.
	RedactKeys []string `env:"WEAVE_REDACT_KEYS"`

	// CaptureCode records the redacted source of each op with its object.
	CaptureCode bool `env:"WEAVE_CAPTURE_CODE, default=true"`

	// BlobDir stores binary payloads on local disk.
	BlobDir string `env:"WEAVE_BLOB_DIR"`

	// BlobBucket stores binary payloads in a GCS bucket. It takes precedence
	// over BlobDir.
	BlobBucket string `env:"WEAVE_BLOB_BUCKET"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig(ctx context.Context) (Config, error) {
	return loadConfig(ctx, envconfig.OsLookuper())
}

func loadConfig(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	}); err != nil {
		return Config{}, fmt.Errorf("processing environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the client cannot use.
func (c Config) Validate() error {
	if c.Project == "" {
		return errors.New("project is required")
	}
	if c.Parallelism < 0 {
		return errors.New("parallelism cannot be negative")
	}
	if c.BatchSize < 0 {
		return errors.New("batch size cannot be negative")
	}
	if c.BatchSize > 0 && c.FlushInterval <= 0 {
		return errors.New("flush interval must be positive when batching")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}
	return nil
}

func (c Config) batchOptions() batch.Options {
	return batch.Options{
		MaxBatchSize:  c.BatchSize,
		FlushInterval: c.FlushInterval,
		Retry:         c.Retry,
	}
}
