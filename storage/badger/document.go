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

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// errStopIteration ends a scan early without surfacing an error.
var errStopIteration = errors.New("stop iteration")

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is owned by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// AddDocuments inserts one or more documents with their date and link indices.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		seenLinks := make(map[string]bool, len(docs))
		for _, doc := range docs {
			if err := core.ValidateDocument(doc); err != nil {
				return err
			}

			key := makeDocumentKey(doc.ID)
			exists, err := keyExists(tx, key)
			if err != nil {
				return err
			}
			if exists {
				return fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, doc.ID)
			}

			if doc.Link != "" {
				linkKey := makeDocumentLinkKey(doc.Link)
				exists, err := keyExists(tx, linkKey)
				if err != nil {
					return err
				}
				if exists || seenLinks[doc.Link] {
					return fmt.Errorf("%w: link %s", storage.ErrDuplicateKey, doc.Link)
				}
				seenLinks[doc.Link] = true
				if err := tx.Set(linkKey, []byte(doc.ID)); err != nil {
					return err
				}
			}

			if doc.InsertedAt.IsZero() {
				doc.InsertedAt = time.Now().UTC()
			}

			// Store primary record
			value, err := storage.MarshalDocument(doc)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}

			// Update date index
			if err := tx.Set(makeDocumentDateKey(doc.PublishedAt, doc.ID), []byte(doc.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return docs, nil
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, makeDocumentKey(id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

// GetDocuments retrieves multiple documents by their IDs.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...string) ([]*core.Document, error) {
	docs := make([]*core.Document, 0, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// FindDocumentByLink finds a document by its source link.
func (r *DocumentRepository) FindDocumentByLink(ctx context.Context, link string) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentLinkKey(link))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		doc, err = readDocument(tx, makeDocumentKey(string(id)))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

// FindDocuments returns documents matching the filter, newest first.
func (r *DocumentRepository) FindDocuments(ctx context.Context, filter storage.DocumentFilter) ([]*core.Document, error) {
	if filter.Skip < 0 || filter.Limit < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var docs []*core.Document
	skipped := 0
	err := r.ForEachDocument(ctx, func(doc *core.Document) error {
		if !filter.Matches(doc) {
			return nil
		}
		if skipped < filter.Skip {
			skipped++
			return nil
		}
		docs = append(docs, doc)
		if filter.Limit > 0 && len(docs) >= filter.Limit {
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return nil, err
	}
	return docs, nil
}

// CountDocuments counts documents matching the filter.
func (r *DocumentRepository) CountDocuments(ctx context.Context, filter storage.DocumentFilter) (int, error) {
	if isUnconstrained(filter) {
		return r.backend.CountPrefix([]byte(documentPrefix))
	}

	count := 0
	err := r.ForEachDocument(ctx, func(doc *core.Document) error {
		if filter.Matches(doc) {
			count++
		}
		return nil
	})
	return count, err
}

// ForEachDocument calls fn for every document, newest first, following the date index.
func (r *DocumentRepository) ForEachDocument(ctx context.Context, fn func(doc *core.Document) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentDatePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			id, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := readDocument(tx, makeDocumentKey(string(id)))
			if err != nil {
				return err
			}
			if doc == nil {
				// Dangling index entry
				continue
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// readDocument reads a document within a transaction.
// Returns nil, nil when the key doesn't exist.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}

// keyExists reports whether key is present.
func keyExists(tx *badger.Txn, key []byte) (bool, error) {
	_, err := tx.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// isUnconstrained reports whether the filter has no matching constraints.
func isUnconstrained(f storage.DocumentFilter) bool {
	return f.Language == "" && f.Category == "" && f.From.IsZero() && f.To.IsZero() && !f.WithImages
}
