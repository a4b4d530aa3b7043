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

package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/reembed"
	"github.com/poiesic/newsrag/storage"
)

const (
	// DefaultBatchSize is the number of imported documents embedded together.
	DefaultBatchSize = 32

	// MaxReportErrors bounds the number of errors kept in an ImportReport.
	MaxReportErrors = 50

	// maxLineBytes bounds a single JSON lines record.
	maxLineBytes = 8 << 20
)

// ImportReport summarises one import.
type ImportReport struct {
	Read       int // Records decoded or rejected
	Imported   int
	Duplicates int // Link or id already stored
	Rejected   int // Malformed records and articles failing validation

	Embedded    int // Text embeddings stored on import
	EmbedFailed int

	Errors []error
}

func (r *ImportReport) addError(err error) {
	if len(r.Errors) < MaxReportErrors {
		r.Errors = append(r.Errors, err)
	}
}

// Importer loads crawler output into the document store.
type Importer struct {
	docs       storage.DocumentRepository
	classifier Classifier
	batchSize  int
	logger     *slog.Logger
	now        func() time.Time

	// Embedding on import
	embeddings storage.EmbeddingRepository
	processor  *reembed.TextBatchProcessor
	pool       *ants.Pool
	index      storage.VectorIndex
}

// Option configures an Importer.
type Option func(*Importer) error

// WithClassifier sets the classifier for articles without a category. Nil disables classification.
func WithClassifier(classifier Classifier) Option {
	return func(i *Importer) error {
		i.classifier = classifier
		return nil
	}
}

// WithBatchSize sets how many imported documents are embedded together.
func WithBatchSize(size int) Option {
	return func(i *Importer) error {
		if size < 1 {
			size = 1
		}
		i.batchSize = size
		return nil
	}
}

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithTextEmbedding embeds the text of every imported document on a worker pool
// of poolSize goroutines. Import waits for the embeddings before returning.
func WithTextEmbedding(embedder ai.TextEmbedder, embeddings storage.EmbeddingRepository, poolSize int) Option {
	return func(i *Importer) error {
		if embedder == nil {
			return ErrEmbedderRequired
		}
		if embeddings == nil {
			return ErrEmbeddingRepositoryRequired
		}
		if poolSize < 1 {
			poolSize = max(runtime.NumCPU()/2, 1)
		}

		// Release old pool
		if i.pool != nil {
			i.pool.Release()
		}
		pool, err := ants.NewPool(poolSize)
		if err != nil {
			return err
		}
		i.pool = pool
		i.embeddings = embeddings
		i.processor = reembed.NewTextBatchProcessor(embedder, 3, time.Second)
		return nil
	}
}

// WithIndex mirrors embeddings stored on import into a native vector index.
func WithIndex(index storage.VectorIndex) Option {
	return func(i *Importer) error {
		i.index = index
		return nil
	}
}

// NewImporter creates an importer. Articles without a category are classified
// with the default keyword taxonomy unless WithClassifier says otherwise.
func NewImporter(docs storage.DocumentRepository, opts ...Option) (*Importer, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}

	i := &Importer{
		docs:       docs,
		classifier: NewDefaultClassifier(),
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
		now:        time.Now,
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(i); err != nil {
			i.Release()
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "importer")

	return i, nil
}

// Release releases the embedding pool, if any.
// The importer should not be used after calling Release.
func (i *Importer) Release() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// Import reads a JSON array or JSON lines of articles from r and stores them.
// Malformed records and invalid articles are rejected and counted; duplicates
// are counted and skipped. A JSON array that is not well formed stops the import.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportReport, error) {
	report := &ImportReport{}
	batcher := i.newBatcher(ctx, report)

	handle := func(article *Article, decodeErr error) error {
		report.Read++
		if decodeErr != nil {
			report.Rejected++
			report.addError(fmt.Errorf("record %d: %w", report.Read, decodeErr))
			return nil
		}
		return i.store(ctx, article, report, batcher)
	}

	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	var decodeErr error
	switch {
	case errors.Is(err, io.EOF):
		// Empty input
	case err != nil:
		decodeErr = err
	case first == '[':
		decodeErr = decodeArray(br, handle)
	default:
		decodeErr = decodeLines(br, handle)
	}

	batcher.finish()
	if decodeErr != nil {
		return report, decodeErr
	}
	i.logger.Info("import finished",
		"read", report.Read, "imported", report.Imported, "duplicates", report.Duplicates,
		"rejected", report.Rejected, "embedded", report.Embedded, "embedFailed", report.EmbedFailed)
	return report, nil
}

func (i *Importer) store(ctx context.Context, article *Article, report *ImportReport, batcher *embedBatcher) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := article.toDocument(i.classifier, i.now())
	if err == nil {
		err = core.ValidateDocument(doc)
	}
	if err != nil {
		report.Rejected++
		report.addError(fmt.Errorf("record %d: %w", report.Read, err))
		return nil
	}

	if _, err := i.docs.AddDocuments(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			report.Duplicates++
			i.logger.Debug("skipping duplicate article", "id", doc.ID, "link", doc.Link)
			return nil
		}
		return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
	}
	report.Imported++
	batcher.add(doc)
	return nil
}

// decodeArray streams the elements of a JSON array.
// Elements with unknown fields are reported and skipped; syntax errors stop decoding.
func decodeArray(r io.Reader, handle func(*Article, error) error) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read article array: %w", err)
	}
	for dec.More() {
		var article Article
		if err := dec.Decode(&article); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("failed to read article array: %w", err)
			}
			if herr := handle(nil, err); herr != nil {
				return herr
			}
			continue
		}
		if err := handle(&article, nil); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read article array: %w", err)
	}
	return nil
}

// decodeLines decodes one article per non-blank line.
func decodeLines(r io.Reader, handle func(*Article, error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		var article Article
		if err := dec.Decode(&article); err != nil {
			if herr := handle(nil, err); herr != nil {
				return herr
			}
			continue
		}
		if err := handle(&article, nil); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, r.UnreadByte()
	}
}

// embedBatcher groups imported documents and embeds each group on the pool.
// Workers only touch the batcher's own counters; finish merges them into the report.
type embedBatcher struct {
	importer *Importer
	ctx      context.Context
	report   *ImportReport
	pending  []*core.Document
	wg       sync.WaitGroup

	mu       sync.Mutex
	embedded int
	failures int
	errs     []error
}

func (i *Importer) newBatcher(ctx context.Context, report *ImportReport) *embedBatcher {
	return &embedBatcher{importer: i, ctx: ctx, report: report}
}

func (b *embedBatcher) add(doc *core.Document) {
	if b.importer.pool == nil {
		return
	}
	b.pending = append(b.pending, doc)
	if len(b.pending) >= b.importer.batchSize {
		b.flush()
	}
}

func (b *embedBatcher) flush() {
	if len(b.pending) == 0 {
		return
	}
	batch := b.pending
	b.pending = nil

	b.wg.Add(1)
	err := b.importer.pool.Submit(func() {
		defer b.wg.Done()
		b.embed(batch)
	})
	if err != nil {
		b.wg.Done()
		b.failed(batch, fmt.Errorf("failed to schedule embedding: %w", err))
	}
}

// finish flushes the last batch, waits for every submitted batch and merges the outcome.
func (b *embedBatcher) finish() {
	if b.importer.pool == nil {
		return
	}
	b.flush()
	b.wg.Wait()

	b.report.Embedded += b.embedded
	b.report.EmbedFailed += b.failures
	for _, err := range b.errs {
		b.report.addError(err)
	}
}

func (b *embedBatcher) embed(batch []*core.Document) {
	imp := b.importer
	records, err := imp.processor.Process(b.ctx, batch)
	if err == nil {
		err = imp.embeddings.PutEmbeddings(b.ctx, records...)
	}
	if err != nil {
		imp.logger.Error("error embedding imported documents", "documents", len(batch), "err", err)
		b.failed(batch, err)
		return
	}
	if imp.index != nil {
		// The document store is authoritative; a later text pass rebuilds the index
		if err := imp.index.Index(b.ctx, records...); err != nil {
			imp.logger.Warn("failed to mirror imported embeddings into vector index", "count", len(records), "err", err)
		}
	}

	b.mu.Lock()
	b.embedded += len(records)
	b.mu.Unlock()
}

func (b *embedBatcher) failed(batch []*core.Document, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures += len(batch)
	b.errs = append(b.errs, fmt.Errorf("embedding %d documents: %w", len(batch), err))
}
