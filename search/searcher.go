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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

const (
	// DefaultLimit is the number of results returned when a query sets none.
	DefaultLimit = 5
	// MaxLimit caps the number of results of one query.
	MaxLimit = 100
)

// Query is one hybrid search request. At least one of Text and ImageURL must be set.
type Query struct {
	Text     string
	ImageURL string
	Limit    int
}

// Result is a ranked document with its per-modality similarities.
type Result struct {
	Document *core.Document
	Score    float64
	SimText  float64
	SimImage float64
}

// Searcher answers hybrid text and image queries.
// It is safe for concurrent use.
type Searcher struct {
	docs          storage.DocumentRepository
	vectors       VectorSearcher
	textEmbedder  ai.TextEmbedder
	imageEmbedder ai.ImageEmbedder
	fetcher       ai.ImageFetcher
	weights       Weights
	pool          *ants.Pool
	ownsPool      bool
	logger        *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets the logger. A nil logger falls back to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithWeights sets the fusion weights. Weights must be finite and non-negative.
func WithWeights(w Weights) Option {
	return func(s *Searcher) error {
		for name, v := range map[string]float64{"textWeight": w.Text, "imageWeight": w.Image} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return core.NewValidationError(name, "must be a finite non-negative number")
			}
		}
		s.weights = w
		return nil
	}
}

// WithTextEmbedder replaces the provider's text embedder for queries,
// typically with a cache.CachedTextEmbedder.
func WithTextEmbedder(embedder ai.TextEmbedder) Option {
	return func(s *Searcher) error {
		if embedder != nil {
			s.textEmbedder = embedder
		}
		return nil
	}
}

// WithPool runs query legs on a shared pool. The caller keeps ownership of the pool.
func WithPool(pool *ants.Pool) Option {
	return func(s *Searcher) error {
		if pool != nil {
			s.pool = pool
		}
		return nil
	}
}

// NewSearcher creates a hybrid searcher.
// vectors is usually an *Engine; a native index satisfies the same contract.
func NewSearcher(
	docs storage.DocumentRepository,
	vectors VectorSearcher,
	provider ai.Provider,
	fetcher ai.ImageFetcher,
	opts ...Option,
) (*Searcher, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if vectors == nil {
		return nil, ErrVectorSearcherRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if fetcher == nil {
		return nil, ErrImageFetcherRequired
	}

	s := &Searcher{
		docs:          docs,
		vectors:       vectors,
		textEmbedder:  provider.TextEmbedder(),
		imageEmbedder: provider.ImageEmbedder(),
		fetcher:       fetcher,
		weights:       DefaultWeights(),
		logger:        slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	if s.pool == nil {
		size := max(runtime.NumCPU(), 2)
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.ownsPool = true
	}

	return s, nil
}

// Close releases the leg pool if the searcher created it.
func (s *Searcher) Close() error {
	if s.ownsPool {
		s.pool.Release()
	}
	return nil
}

// Weights returns the fusion weights in use.
func (s *Searcher) Weights() Weights {
	return s.weights
}

// Normalize trims the query and applies the default limit.
// It returns a *core.ValidationError when the query cannot be served.
func (q Query) Normalize() (Query, error) {
	q.Text = strings.TrimSpace(q.Text)
	q.ImageURL = strings.TrimSpace(q.ImageURL)

	if q.Text == "" && q.ImageURL == "" {
		return q, core.NewValidationError("query", "query or imageUrl is required")
	}
	if q.ImageURL != "" {
		if err := core.ValidateImageURL(q.ImageURL); err != nil {
			return q, err
		}
	}
	switch {
	case q.Limit < 0:
		return q, core.NewValidationError("limit", "must not be negative")
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q, nil
}

// Search runs a hybrid query.
func (s *Searcher) Search(ctx context.Context, query Query) ([]*Result, error) {
	return s.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor runs a hybrid query, reporting each stage to monitor.
// The text and image legs run concurrently; each asks for twice the limit so
// fusion has candidates from both sides.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query Query, monitor SearchMonitor) ([]*Result, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	query, err := query.Normalize()
	if err != nil {
		return nil, err
	}
	monitor.Start(query)

	candidates := query.Limit * 2
	var (
		wg                        sync.WaitGroup
		textMatches, imageMatches []core.Match
		textErr, imageErr         error
	)
	if query.Text != "" {
		if err := s.submit(&wg, func() {
			textMatches, textErr = s.searchText(ctx, query.Text, candidates)
		}); err != nil {
			return nil, err
		}
	}
	if query.ImageURL != "" {
		if err := s.submit(&wg, func() {
			imageMatches, imageErr = s.searchImage(ctx, query.ImageURL, candidates)
		}); err != nil {
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()

	if textErr != nil {
		s.logger.Error("text leg failed", "err", textErr)
		return nil, textErr
	}
	if imageErr != nil {
		s.logger.Error("image leg failed", "imageUrl", query.ImageURL, "err", imageErr)
		return nil, imageErr
	}
	monitor.AfterTextSearch(textMatches)
	monitor.AfterImageSearch(imageMatches)

	ranked, err := Fuse(textMatches, imageMatches, s.weights, query.Limit)
	if err != nil {
		return nil, err
	}
	monitor.AfterFusion(ranked)

	if len(ranked) == 0 {
		monitor.Finish([]*Result{})
		return []*Result{}, nil
	}

	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.DocumentID
	}
	docs, err := s.docs.GetDocuments(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving documents", "count", len(ids), "err", err)
		return nil, err
	}
	monitor.AfterDocumentRetrieval(docs)

	byID := make(map[string]*core.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	results := make([]*Result, 0, len(ranked))
	for _, r := range ranked {
		doc, ok := byID[r.DocumentID]
		if !ok {
			s.logger.Warn("embedding refers to a missing document", "documentId", r.DocumentID)
			continue
		}
		results = append(results, &Result{
			Document: doc,
			Score:    r.Score,
			SimText:  r.SimText,
			SimImage: r.SimImage,
		})
	}
	monitor.Finish(results)

	return results, nil
}

func (s *Searcher) submit(wg *sync.WaitGroup, task func()) error {
	wg.Add(1)
	err := s.pool.Submit(func() {
		defer wg.Done()
		task()
	})
	if err != nil {
		wg.Done()
		return fmt.Errorf("failed to schedule search: %w", err)
	}
	return nil
}

func (s *Searcher) searchText(ctx context.Context, text string, topK int) ([]core.Match, error) {
	vector, err := s.textEmbedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	matches, err := s.vectors.Search(ctx, vector, core.KindText, topK)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return BestPerDocument(matches), nil
}

func (s *Searcher) searchImage(ctx context.Context, url string, topK int) ([]core.Match, error) {
	img, err := s.fetcher.FetchImage(ctx, url)
	if err != nil {
		return nil, err
	}
	vector, err := s.imageEmbedder.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query image: %w", err)
	}
	matches, err := s.vectors.Search(ctx, vector, core.KindImage, topK)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}
	return BestPerDocument(matches), nil
}
