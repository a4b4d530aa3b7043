// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

const (
	// PassText names the text pass in reports and checkpoints.
	PassText = "text"
	// PassImage names the image pass in reports and checkpoints.
	PassImage = "image"

	// MaxReportErrors bounds the number of item errors kept in a Report.
	MaxReportErrors = 50
)

// Config holds configuration for the embedding passes.
type Config struct {
	// BatchSize is the number of documents embedded per text encoder call
	BatchSize int

	// ReportInterval is how often to report progress (number of items)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for a text encoder call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Resume keeps existing image records and skips the (document, url) pairs they cover
	Resume bool

	// MaxConsecutiveFailures is the number of back-to-back image failures that
	// triggers a warning and a checkpoint
	MaxConsecutiveFailures int
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:              100,
		ReportInterval:         100,
		MaxRetries:             3,
		RetryDelay:             1 * time.Second,
		MaxConsecutiveFailures: 5,
	}
}

// Validate checks the config for values the passes cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: BatchSize must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.ReportInterval <= 0:
		return fmt.Errorf("%w: ReportInterval must be positive, got %d", ErrInvalidConfig, c.ReportInterval)
	case c.MaxRetries <= 0:
		return fmt.Errorf("%w: MaxRetries must be positive, got %d", ErrInvalidConfig, c.MaxRetries)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: RetryDelay must not be negative, got %v", ErrInvalidConfig, c.RetryDelay)
	case c.MaxConsecutiveFailures <= 0:
		return fmt.Errorf("%w: MaxConsecutiveFailures must be positive, got %d", ErrInvalidConfig, c.MaxConsecutiveFailures)
	}
	return nil
}

// Option configures a pass.
type Option func(*passOptions) error

type passOptions struct {
	logger      *slog.Logger
	progress    io.Writer
	index       storage.VectorIndex
	checkpoints storage.CheckpointRepository
}

func defaultPassOptions() *passOptions {
	return &passOptions{
		logger:   slog.Default(),
		progress: io.Discard,
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *passOptions) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithProgress sets where progress lines are written. A nil writer discards them.
func WithProgress(w io.Writer) Option {
	return func(o *passOptions) error {
		if w == nil {
			w = io.Discard
		}
		o.progress = w
		return nil
	}
}

// WithIndex mirrors every stored record into a native vector index.
func WithIndex(index storage.VectorIndex) Option {
	return func(o *passOptions) error {
		o.index = index
		return nil
	}
}

// WithCheckpoints persists a summary of each run.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(o *passOptions) error {
		o.checkpoints = repo
		return nil
	}
}

func applyOptions(config *Config, opts []Option) (*Config, *passOptions, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, nil, err
	}
	o := defaultPassOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, nil, err
		}
	}
	return config, o, nil
}

// indexRecords mirrors records into the index, if one is configured.
// The badger store is authoritative, so index failures are logged and not returned.
func (o *passOptions) indexRecords(ctx context.Context, logger *slog.Logger, records ...*core.Embedding) {
	if o.index == nil || len(records) == 0 {
		return
	}
	if err := o.index.Index(ctx, records...); err != nil {
		logger.Warn("failed to mirror records into vector index", "count", len(records), "error", err)
	}
}

func (o *passOptions) saveCheckpoint(ctx context.Context, logger *slog.Logger, checkpoint *core.Checkpoint) {
	if o.checkpoints == nil {
		return
	}
	// Use a fresh context so a cancelled run still records where it stopped
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.checkpoints.SaveCheckpoint(saveCtx, checkpoint); err != nil {
		logger.Warn("failed to save checkpoint", "pass", checkpoint.Pass, "error", err)
	}
}

// Report summarises one run of a pass.
type Report struct {
	Pass string

	// Eligible counts the items the pass should cover: documents with text for the
	// text pass, valid (document, url) pairs for the image pass.
	Eligible int

	Attempted   int
	Succeeded   int
	Failed      int
	Skipped     int // Blank text or invalid image URL
	AlreadyDone int // Image pairs with an existing record under resume

	// Errors keeps the first MaxReportErrors item failures.
	Errors  []error
	Elapsed time.Duration
}

// Coverage returns the percentage of eligible items that now have a record.
func (r *Report) Coverage() float64 {
	if r.Eligible == 0 {
		return 0
	}
	return float64(r.Succeeded+r.AlreadyDone) / float64(r.Eligible) * 100
}

func (r *Report) String() string {
	return fmt.Sprintf("%s pass: eligible=%d attempted=%d succeeded=%d failed=%d skipped=%d already_done=%d coverage=%.1f%% elapsed=%v",
		r.Pass, r.Eligible, r.Attempted, r.Succeeded, r.Failed, r.Skipped, r.AlreadyDone, r.Coverage(), r.Elapsed.Round(time.Millisecond))
}

func (r *Report) recordFailure(err error) {
	r.Attempted++
	r.Failed++
	if len(r.Errors) < MaxReportErrors {
		r.Errors = append(r.Errors, err)
	}
}

func (r *Report) checkpoint(lastDocumentID string, completed bool) *core.Checkpoint {
	return &core.Checkpoint{
		Pass:           r.Pass,
		Eligible:       r.Eligible,
		Attempted:      r.Attempted,
		Succeeded:      r.Succeeded,
		Failed:         r.Failed,
		Skipped:        r.Skipped,
		AlreadyDone:    r.AlreadyDone,
		LastDocumentID: lastDocumentID,
		Completed:      completed,
	}
}
