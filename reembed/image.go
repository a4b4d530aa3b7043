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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// imageTask is one (document, url) pair to embed.
type imageTask struct {
	documentID string
	url        string
}

// ImagePass embeds every image referenced by stored documents.
// In resume mode pending work is derived from the records already stored,
// so the pass can be restarted at any point.
type ImagePass struct {
	docs       storage.DocumentRepository
	embeddings storage.EmbeddingRepository
	fetcher    ai.ImageFetcher
	embedder   ai.ImageEmbedder
	config     *Config
	opts       *passOptions
	logger     *slog.Logger
}

// NewImagePass creates an image pass. A nil config uses DefaultConfig.
func NewImagePass(docs storage.DocumentRepository, embeddings storage.EmbeddingRepository, fetcher ai.ImageFetcher, embedder ai.ImageEmbedder, config *Config, opts ...Option) (*ImagePass, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embeddings == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	config, o, err := applyOptions(config, opts)
	if err != nil {
		return nil, err
	}

	return &ImagePass{
		docs:       docs,
		embeddings: embeddings,
		fetcher:    fetcher,
		embedder:   embedder,
		config:     config,
		opts:       o,
		logger:     o.logger.With("component", "reembed", "pass", PassImage),
	}, nil
}

// Run embeds every eligible (document, url) pair.
// Item failures are counted and never abort the pass. On cancellation the
// partial report is returned with the context error.
func (p *ImagePass) Run(ctx context.Context) (*Report, error) {
	report := &Report{Pass: PassImage}
	start := time.Now()
	defer func() { report.Elapsed = time.Since(start) }()

	tasks, err := p.plan(ctx, report)
	if err != nil {
		return report, err
	}
	report.Eligible = len(tasks)

	if !p.config.Resume {
		removed, err := p.embeddings.DeleteEmbeddings(ctx, core.KindImage)
		if err != nil {
			return report, fmt.Errorf("failed to clear image embeddings: %w", err)
		}
		if p.opts.index != nil {
			if err := p.opts.index.Reset(ctx, core.KindImage); err != nil {
				return report, fmt.Errorf("failed to reset image index: %w", err)
			}
		}
		p.logger.Debug("cleared image embeddings", "removed", removed)
	}

	p.logger.Info("starting image pass", "eligible", report.Eligible, "skipped", report.Skipped, "resume", p.config.Resume)
	if len(tasks) == 0 {
		fmt.Fprintf(p.opts.progress, "No images to embed (0 eligible)\n")
		p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint("", true))
		return report, nil
	}

	fmt.Fprintf(p.opts.progress, "Starting image embedding of %d images (resume: %t)\n", len(tasks), p.config.Resume)
	tracker := NewProgressTracker(p.opts.progress, len(tasks), p.config.ReportInterval)
	tracker.Start()

	consecutive := 0
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(task.documentID, false))
			return report, err
		}

		if p.config.Resume {
			done, err := p.alreadyEmbedded(ctx, task)
			if err != nil {
				return report, fmt.Errorf("failed to check image record: %w", err)
			}
			if done {
				report.AlreadyDone++
				tracker.Update(i + 1)
				continue
			}
		}

		if err := p.embed(ctx, task); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(task.documentID, false))
				return report, ctxErr
			}

			report.recordFailure(err)
			consecutive++
			p.logger.Debug("image failed", "document", task.documentID, "url", task.url, "consecutive", consecutive, "error", err)

			if consecutive >= p.config.MaxConsecutiveFailures {
				p.logger.Warn("consecutive image failures reached threshold, continuing",
					"threshold", p.config.MaxConsecutiveFailures, "document", task.documentID,
					"failed", report.Failed, "succeeded", report.Succeeded)
				p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(task.documentID, false))
				consecutive = 0
			}
		} else {
			report.Attempted++
			report.Succeeded++
			consecutive = 0
		}
		tracker.Update(i + 1)
	}

	tracker.Finish()
	p.opts.saveCheckpoint(ctx, p.logger, report.checkpoint(tasks[len(tasks)-1].documentID, true))

	fmt.Fprintf(p.opts.progress, "Image embedding complete. %d succeeded, %d failed, %d skipped, coverage %.1f%%\n",
		report.Succeeded, report.Failed, report.Skipped, report.Coverage())
	p.logger.Info("image pass finished", "succeeded", report.Succeeded, "failed", report.Failed,
		"skipped", report.Skipped, "alreadyDone", report.AlreadyDone, "coverage", report.Coverage())
	return report, nil
}

// alreadyEmbedded reports whether task has a stored record. With an index
// configured the stored record is mirrored again so a resumed pass also fills
// an index that missed earlier runs.
func (p *ImagePass) alreadyEmbedded(ctx context.Context, task imageTask) (bool, error) {
	key := core.ImageKey(task.documentID, task.url)
	if p.opts.index == nil {
		return p.embeddings.HasEmbedding(ctx, key)
	}
	record, err := p.embeddings.GetEmbedding(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	p.opts.indexRecords(ctx, p.logger, record)
	return true, nil
}

// plan lists the (document, url) pairs to embed, newest document first.
// Invalid references are counted as skipped; repeated references within a document collapse.
func (p *ImagePass) plan(ctx context.Context, report *Report) ([]imageTask, error) {
	docs, err := p.docs.FindDocuments(ctx, storage.DocumentFilter{WithImages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents with images: %w", err)
	}

	var tasks []imageTask
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc.Images))
		for _, ref := range doc.Images {
			ref = strings.TrimSpace(ref)
			if ref == "" || seen[ref] {
				continue
			}
			seen[ref] = true
			if err := core.ValidateImageURL(ref); err != nil {
				report.Skipped++
				p.logger.Debug("skipping invalid image reference", "document", doc.ID, "ref", ref, "error", err)
				continue
			}
			tasks = append(tasks, imageTask{documentID: doc.ID, url: ref})
		}
	}
	return tasks, nil
}

// embed fetches, encodes and stores one image.
func (p *ImagePass) embed(ctx context.Context, task imageTask) error {
	img, err := p.fetcher.FetchImage(ctx, task.url)
	if err != nil {
		return fmt.Errorf("document %s: %w", task.documentID, err)
	}

	vector, err := p.embedder.EmbedImage(ctx, img)
	if err != nil {
		return fmt.Errorf("document %s image %s: %w", task.documentID, task.url, err)
	}
	vector, err = ai.FinishVector(core.KindImage, vector)
	if err != nil {
		return fmt.Errorf("document %s image %s: %w", task.documentID, task.url, err)
	}

	record := &core.Embedding{
		DocumentID: task.documentID,
		ImageURL:   task.url,
		Kind:       core.KindImage,
		Model:      p.embedder.Model(),
		Vector:     vector,
	}
	if err := p.embeddings.PutEmbeddings(ctx, record); err != nil {
		return fmt.Errorf("failed to store image record: %w", err)
	}
	p.opts.indexRecords(ctx, p.logger, record)
	return nil
}
