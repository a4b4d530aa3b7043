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

package newsrag

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/ai/openai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/ingestion"
	"github.com/poiesic/newsrag/reembed"
	"github.com/poiesic/newsrag/search"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
)

// unitNormTolerance bounds how far a stored vector's norm may drift from 1.
const unitNormTolerance = 1e-3

// Database owns the store handle and the collaborators shared by the
// import, embedding and search paths.
type Database struct {
	backend        *badger.Backend
	docRepo        *badger.DocumentRepository
	embeddingRepo  *badger.EmbeddingRepository
	checkpointRepo *badger.CheckpointRepository
	provider       ai.Provider
	fetcher        ai.ImageFetcher
	queryEmbedder  ai.TextEmbedder
	index          storage.VectorIndex
	logger         *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig      *ai.Config
	provider      ai.Provider
	fetcher       ai.ImageFetcher
	queryEmbedder ai.TextEmbedder
	index         storage.VectorIndex
	logger        *slog.Logger
	inMemory      bool
}

// WithAIConfig sets the configuration of the default embedding provider.
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider replaces the embedding provider built from the AI config.
// The database closes it on Close.
func WithProvider(provider ai.Provider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithFetcher replaces the default image fetcher.
func WithFetcher(fetcher ai.ImageFetcher) DatabaseOption {
	return func(o *databaseOptions) {
		o.fetcher = fetcher
	}
}

// WithQueryEmbedder sets the text embedder used for search queries, typically a cache
// in front of the provider's embedder.
func WithQueryEmbedder(embedder ai.TextEmbedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.queryEmbedder = embedder
	}
}

// WithIndex mirrors stored embeddings into a native vector index and searches it
// instead of scanning the store. The database closes it on Close when it is an io.Closer.
func WithIndex(index storage.VectorIndex) DatabaseOption {
	return func(o *databaseOptions) {
		o.index = index
	}
}

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// InMemory keeps the store in memory. The path passed to NewDatabase is ignored.
func InMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// NewDatabase opens the store at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Open backend
	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	// Create AI provider with configured settings
	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	fetcher := options.fetcher
	if fetcher == nil {
		fetcher, err = ai.NewFetcher(ai.WithLogger(logger))
		if err != nil {
			provider.Close()
			backend.Close()
			return nil, err
		}
	}

	return &Database{
		backend:        backend,
		docRepo:        badger.NewDocumentRepository(backend),
		embeddingRepo:  badger.NewEmbeddingRepository(backend),
		checkpointRepo: badger.NewCheckpointRepository(backend),
		provider:       provider,
		fetcher:        fetcher,
		queryEmbedder:  options.queryEmbedder,
		index:          options.index,
		logger:         logger.With("component", "database"),
	}, nil
}

// Close releases the index, the provider and the store, in that order.
func (db *Database) Close() error {
	if closer, ok := db.index.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			db.logger.Error("error closing vector index", "err", err)
		}
	}

	// Close AI provider
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}

	// Close repositories
	if err := db.embeddingRepo.Close(); err != nil {
		db.logger.Error("error closing embedding repository", "err", err)
		return err
	}
	if err := db.docRepo.Close(); err != nil {
		db.logger.Error("error closing document repository", "err", err)
		return err
	}

	// Close backend
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

func (db *Database) DocumentRepository() storage.DocumentRepository {
	return db.docRepo
}

func (db *Database) EmbeddingRepository() storage.EmbeddingRepository {
	return db.embeddingRepo
}

func (db *Database) CheckpointRepository() storage.CheckpointRepository {
	return db.checkpointRepo
}

func (db *Database) Provider() ai.Provider {
	return db.provider
}

func (db *Database) NewImporter(opts ...ingestion.Option) (*ingestion.Importer, error) {
	base := []ingestion.Option{ingestion.WithLogger(db.logger)}
	if db.index != nil {
		base = append(base, ingestion.WithIndex(db.index))
	}
	return ingestion.NewImporter(db.docRepo, append(base, opts...)...)
}

// NewTextPass creates a text pass that records its checkpoint and mirrors into the index.
func (db *Database) NewTextPass(config *reembed.Config, opts ...reembed.Option) (*reembed.TextPass, error) {
	return reembed.NewTextPass(db.docRepo, db.embeddingRepo, db.provider.TextEmbedder(), config, db.passOptions(opts)...)
}

// NewImagePass creates an image pass that records its checkpoint and mirrors into the index.
func (db *Database) NewImagePass(config *reembed.Config, opts ...reembed.Option) (*reembed.ImagePass, error) {
	return reembed.NewImagePass(db.docRepo, db.embeddingRepo, db.fetcher, db.provider.ImageEmbedder(), config, db.passOptions(opts)...)
}

func (db *Database) passOptions(opts []reembed.Option) []reembed.Option {
	base := []reembed.Option{reembed.WithLogger(db.logger), reembed.WithCheckpoints(db.checkpointRepo)}
	if db.index != nil {
		base = append(base, reembed.WithIndex(db.index))
	}
	return append(base, opts...)
}

// NewSearcher creates a hybrid searcher over the index when one is configured,
// otherwise over a linear scan of the store.
func (db *Database) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	var vectors search.VectorSearcher = db.index
	if db.index == nil {
		engine, err := search.NewEngine(db.embeddingRepo, db.logger)
		if err != nil {
			return nil, err
		}
		vectors = engine
	}

	base := []search.Option{search.WithLogger(db.logger)}
	if db.queryEmbedder != nil {
		base = append(base, search.WithTextEmbedder(db.queryEmbedder))
	}
	return search.NewSearcher(db.docRepo, vectors, db.provider, db.fetcher, append(base, opts...)...)
}

// Stats describes the contents of the store.
type Stats struct {
	Documents           int              `json:"documents"`
	TextEmbeddings      int              `json:"textEmbeddings"`
	ImageEmbeddings     int              `json:"imageEmbeddings"`
	DocumentsWithImages int              `json:"documentsWithImages"`
	ImageReferences     int              `json:"imageReferences"`
	ImageCoverage       float64          `json:"imageCoverage"` // Percentage of image references embedded
	LastTextPass        *core.Checkpoint `json:"lastTextPass,omitempty"`
	LastImagePass       *core.Checkpoint `json:"lastImagePass,omitempty"`
}

// Stats counts documents and embeddings. Image references are the distinct valid
// image URLs of each document, the same set the image pass works through.
func (db *Database) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := db.docRepo.ForEachDocument(ctx, func(doc *core.Document) error {
		stats.Documents++
		refs := imageReferences(doc)
		if len(refs) > 0 {
			stats.DocumentsWithImages++
			stats.ImageReferences += len(refs)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	if stats.TextEmbeddings, err = db.embeddingRepo.CountEmbeddings(ctx, core.KindText); err != nil {
		return nil, fmt.Errorf("failed to count text embeddings: %w", err)
	}
	if stats.ImageEmbeddings, err = db.embeddingRepo.CountEmbeddings(ctx, core.KindImage); err != nil {
		return nil, fmt.Errorf("failed to count image embeddings: %w", err)
	}
	if stats.ImageReferences > 0 {
		stats.ImageCoverage = math.Min(float64(stats.ImageEmbeddings)/float64(stats.ImageReferences)*100, 100)
	}

	if stats.LastTextPass, err = db.checkpointRepo.LoadCheckpoint(ctx, reembed.PassText); err != nil {
		return nil, fmt.Errorf("failed to load text checkpoint: %w", err)
	}
	if stats.LastImagePass, err = db.checkpointRepo.LoadCheckpoint(ctx, reembed.PassImage); err != nil {
		return nil, fmt.Errorf("failed to load image checkpoint: %w", err)
	}
	return stats, nil
}

func imageReferences(doc *core.Document) []string {
	seen := make(map[string]bool, len(doc.Images))
	var refs []string
	for _, ref := range doc.Images {
		ref = strings.TrimSpace(ref)
		if seen[ref] || core.ValidateImageURL(ref) != nil {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// EmbeddingCheck reports stored records that break the vector invariants.
type EmbeddingCheck struct {
	Checked int
	Invalid []core.EmbeddingKey
	Deleted int
}

// ValidateEmbeddings checks that every stored vector has its kind's dimension and
// unit length, or is all zeros. With remove set, offending records are deleted.
func (db *Database) ValidateEmbeddings(ctx context.Context, remove bool) (*EmbeddingCheck, error) {
	check := &EmbeddingCheck{}
	for _, kind := range []core.Kind{core.KindText, core.KindImage} {
		err := db.embeddingRepo.ForEachEmbedding(ctx, kind, func(e *core.Embedding) error {
			check.Checked++
			if err := core.ValidateEmbedding(e); err != nil {
				db.logger.Warn("invalid embedding", "key", e.Key().String(), "err", err)
				check.Invalid = append(check.Invalid, e.Key())
				return nil
			}
			// Zero vectors are stored as produced; they cannot be normalized.
			if norm := ai.Norm(e.Vector); norm != 0 && math.Abs(norm-1) > unitNormTolerance {
				db.logger.Warn("embedding is not normalized", "key", e.Key().String(), "norm", norm)
				check.Invalid = append(check.Invalid, e.Key())
			}
			return nil
		})
		if err != nil {
			return check, fmt.Errorf("failed to scan %s embeddings: %w", kind, err)
		}
	}

	if !remove {
		return check, nil
	}
	for _, key := range check.Invalid {
		if err := db.embeddingRepo.DeleteEmbedding(ctx, key); err != nil {
			return check, fmt.Errorf("failed to delete embedding %s: %w", key, err)
		}
		check.Deleted++
	}
	return check, nil
}
