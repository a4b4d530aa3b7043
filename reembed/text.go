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
	"log/slog"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// TextPass rebuilds the text embedding of every document.
// It is never incremental: every run replaces all text records.
type TextPass struct {
	docs       storage.DocumentRepository
	embeddings storage.EmbeddingRepository
	config     *Config
	opts       *passOptions
	processor  *TextBatchProcessor
	iterator   *DocumentIterator
	logger     *slog.Logger
}

// NewTextPass creates a text pass. A nil config uses DefaultConfig.
func NewTextPass(docs storage.DocumentRepository, embeddings storage.EmbeddingRepository, embedder ai.TextEmbedder, config *Config, opts ...Option) (*TextPass, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	config, o, err := applyOptions(config, opts)
	if err != nil {
		return nil, err
	}

	return &TextPass{
		docs:       docs,
		embeddings: embeddings,
		config:     config,
		opts:       o,
		processor:  NewTextBatchProcessor(embedder, config.MaxRetries, config.RetryDelay),
		iterator:   NewDocumentIterator(docs, config.BatchSize),
		logger:     o.logger.With("component", "reembed", "pass", PassText),
	}, nil
}

// Run deletes every text record, then embeds and stores the text of each document.
// A batch that still fails after retries marks its documents failed and the pass continues.
// On cancellation the partial report is returned with the context error.
func (p *TextPass) Run(ctx context.Context) (*Report, error) {
	report := &Report{Pass: PassText}
	start := time.Now()
	defer func() { report.Elapsed = time.Since(start) }()

	total, err := p.docs.CountDocuments(ctx, storage.DocumentFilter{})
	if err != nil {
		return report, fmt.Errorf("failed to count documents: %w", err)
	}

	removed, err := p.embeddings.DeleteEmbeddings(ctx, core.KindText)
	if err != nil {
		return report, fmt.Errorf("failed to clear text embeddings: %w", err)
	}
	if p.opts.index != nil {
		if err := p.opts.index.Reset(ctx, core.KindText); err != nil {
			return report, fmt.Errorf("failed to reset text index: %w", err)
		}
	}
	p.logger.Info("starting text pass", "documents", total, "removed", removed, "batchSize", p.config.BatchSize)

	if total == 0 {
		fmt.Fprintf(p.opts.progress, "No documents found in database (0 documents)\n")
		p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint("", true))
		return report, nil
	}

	fmt.Fprintf(p.opts.progress, "Starting text embedding of %d documents (batch size: %d)\n", total, p.config.BatchSize)
	tracker := NewProgressTracker(p.opts.progress, total, p.config.ReportInterval)
	tracker.Start()

	processed := 0
	lastID := ""
	err = p.iterator.ForEach(ctx, func(batch []*core.Document) error {
		eligible := make([]*core.Document, 0, len(batch))
		for _, doc := range batch {
			if doc.EmbeddingText() == "" {
				report.Skipped++
				continue
			}
			eligible = append(eligible, doc)
		}
		report.Eligible += len(eligible)

		if err := p.embedBatch(ctx, eligible, report); err != nil {
			return err
		}

		processed += len(batch)
		lastID = batch[len(batch)-1].ID
		tracker.Update(processed)
		return nil
	})
	if err != nil {
		p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(lastID, false))
		return report, err
	}

	tracker.Finish()
	p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(lastID, true))

	elapsed := tracker.Elapsed()
	fmt.Fprintf(p.opts.progress, "Text embedding complete. Processed %d documents in %v (%.1f documents/sec)\n",
		processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())
	p.logger.Info("text pass finished", "succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

// embedBatch returns an error only when the pass must stop.
func (p *TextPass) embedBatch(ctx context.Context, docs []*core.Document, report *Report) error {
	if len(docs) == 0 {
		return nil
	}

	records, err := p.processor.Process(ctx, docs)
	if err == nil {
		err = p.embeddings.PutEmbeddings(ctx, records...)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.logger.Warn("text batch failed", "documents", len(docs), "first", docs[0].ID, "error", err)
		for _, doc := range docs {
			report.recordFailure(fmt.Errorf("document %s: %w", doc.ID, err))
		}
		return nil
	}

	p.opts.indexRecords(ctx, p.logger, records...)
	report.Attempted += len(docs)
	report.Succeeded += len(docs)
	return nil
}
