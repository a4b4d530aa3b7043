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


package storage

import (
	"context"
	"time"

	"github.com/poiesic/newsrag/core"
)

// DocumentFilter narrows document queries. Zero values mean "no constraint".
type DocumentFilter struct {
	Language   string
	Category   string
	From       time.Time // Inclusive lower bound on PublishedAt
	To         time.Time // Inclusive upper bound on PublishedAt
	WithImages bool      // Only documents referencing at least one image
	Skip       int
	Limit      int // 0 means unlimited
}

// Matches reports whether doc satisfies every constraint of the filter except paging.
func (f *DocumentFilter) Matches(doc *core.Document) bool {
	if f.Language != "" && doc.Language != f.Language {
		return false
	}
	if f.Category != "" && doc.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && doc.PublishedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && doc.PublishedAt.After(f.To) {
		return false
	}
	if f.WithImages && !doc.HasImages() {
		return false
	}
	return true
}

// DocumentRepository provides operations for managing news documents.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// AddDocuments inserts one or more documents.
	// Sets InsertedAt if not already set.
	// Returns ErrDuplicateKey if a document with the same ID or link already exists;
	// in that case nothing from the call is written.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// GetDocuments retrieves multiple documents by their IDs, in the order given.
	// Returns only the documents that exist (no error for missing documents).
	GetDocuments(ctx context.Context, ids ...string) ([]*core.Document, error)

	// FindDocumentByLink finds a document by its source link.
	// Returns ErrNotFound if no document has that link.
	FindDocumentByLink(ctx context.Context, link string) (*core.Document, error)

	// FindDocuments returns documents matching the filter, newest first,
	// honoring Skip and Limit.
	FindDocuments(ctx context.Context, filter DocumentFilter) ([]*core.Document, error)

	// CountDocuments counts documents matching the filter. Paging fields are ignored.
	CountDocuments(ctx context.Context, filter DocumentFilter) (int, error)

	// ForEachDocument calls fn for every document, newest first.
	// Iteration stops at the first error returned by fn.
	ForEachDocument(ctx context.Context, fn func(doc *core.Document) error) error

	// Close releases repository resources. The backend is closed separately.
	Close() error
}

// EmbeddingRepository persists embedding records keyed by core.EmbeddingKey.
// Implementations must be thread-safe and support concurrent access.
type EmbeddingRepository interface {
	// PutEmbeddings stores records, replacing any record with the same key.
	// Every record is validated with core.ValidateEmbedding before anything is written.
	PutEmbeddings(ctx context.Context, records ...*core.Embedding) error

	// HasEmbedding reports whether a record exists for key.
	HasEmbedding(ctx context.Context, key core.EmbeddingKey) (bool, error)

	// GetEmbedding retrieves the record stored under key.
	// Returns ErrNotFound if it doesn't exist.
	GetEmbedding(ctx context.Context, key core.EmbeddingKey) (*core.Embedding, error)

	// ForEachEmbedding calls fn for every record of kind, in key order.
	// The order is stable across calls while the store is unchanged.
	// Iteration stops at the first error returned by fn.
	ForEachEmbedding(ctx context.Context, kind core.Kind, fn func(e *core.Embedding) error) error

	// CountEmbeddings counts the records of kind.
	CountEmbeddings(ctx context.Context, kind core.Kind) (int, error)

	// DeleteEmbedding removes a single record. Missing records are not an error.
	DeleteEmbedding(ctx context.Context, key core.EmbeddingKey) error

	// DeleteEmbeddings removes every record of kind and returns how many were removed.
	DeleteEmbeddings(ctx context.Context, kind core.Kind) (int, error)

	// Close releases repository resources. The backend is closed separately.
	Close() error
}

// CheckpointRepository persists the summary of the last run of each embedding pass.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, setting UpdatedAt.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a pass.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, pass string) (*core.Checkpoint, error)
}

// VectorIndex is a native vector index that mirrors embedding records and
// answers similarity queries with the same contract as the linear-scan engine.
type VectorIndex interface {
	// Index adds or replaces records in the index.
	Index(ctx context.Context, records ...*core.Embedding) error

	// Reset removes every record of kind from the index.
	Reset(ctx context.Context, kind core.Kind) error

	// Search returns up to topK matches of kind ordered by descending similarity.
	Search(ctx context.Context, vector []float32, kind core.Kind, topK int) ([]core.Match, error)

	// Close releases index resources.
	Close() error
}
