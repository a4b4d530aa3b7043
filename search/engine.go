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
	"log/slog"
	"sort"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// VectorSearcher returns up to topK matches of kind ordered by descending similarity.
// Engine implements it by linear scan; storage/qdrant.Index implements it natively.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, kind core.Kind, topK int) ([]core.Match, error)
}

// Engine searches stored embedding records by linear scan.
type Engine struct {
	repo   storage.EmbeddingRepository
	logger *slog.Logger
}

var _ VectorSearcher = (*Engine)(nil)

// NewEngine creates a linear-scan engine. A nil logger uses slog.Default.
func NewEngine(repo storage.EmbeddingRepository, logger *slog.Logger) (*Engine, error) {
	if repo == nil {
		return nil, ErrEmbeddingRepositoryRequired
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:   repo,
		logger: logger.With("component", "search-engine"),
	}, nil
}

// Search scores every record of kind against vector with true cosine similarity.
// Records whose length differs from the query are left out. Ties keep scan order.
func (e *Engine) Search(ctx context.Context, vector []float32, kind core.Kind, topK int) ([]core.Match, error) {
	if topK <= 0 {
		return []core.Match{}, nil
	}

	matches := []core.Match{}
	skipped := 0
	err := e.repo.ForEachEmbedding(ctx, kind, func(record *core.Embedding) error {
		if len(record.Vector) != len(vector) {
			skipped++
			e.logger.Debug("skipping record with mismatched dimension",
				"key", record.Key().String(),
				"error", &core.DimensionMismatchError{Kind: kind, Expected: len(vector), Actual: len(record.Vector)})
			return nil
		}
		matches = append(matches, core.Match{
			DocumentID: record.DocumentID,
			ImageURL:   record.ImageURL,
			Score:      Cosine(vector, record.Vector),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		e.logger.Debug("dimension mismatches excluded from search", "kind", kind, "skipped", skipped)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}
