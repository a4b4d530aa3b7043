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
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) *EmbeddingRepository {
	return &EmbeddingRepository{
		backend: backend,
	}
}

// Close is a no-op; the backend is owned by the caller.
func (r *EmbeddingRepository) Close() error {
	return nil
}

// PutEmbeddings stores records, replacing any record with the same key.
func (r *EmbeddingRepository) PutEmbeddings(ctx context.Context, records ...*core.Embedding) error {
	if len(records) == 0 {
		return nil
	}

	// Validate everything up front so a bad record never leaves a partial write
	keys := make([][]byte, len(records))
	values := make([][]byte, len(records))
	for i, record := range records {
		if err := core.ValidateEmbedding(record); err != nil {
			return err
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now().UTC()
		}
		key, err := makeEmbeddingKey(record.Key())
		if err != nil {
			return err
		}
		value, err := storage.MarshalEmbedding(record)
		if err != nil {
			return err
		}
		keys[i] = key
		values[i] = value
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for i := range keys {
			if err := tx.Set(keys[i], values[i]); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// HasEmbedding reports whether a record exists for key.
func (r *EmbeddingRepository) HasEmbedding(ctx context.Context, key core.EmbeddingKey) (bool, error) {
	dbKey, err := makeEmbeddingKey(key)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		exists, err = keyExists(tx, dbKey)
		return err
	}, false)
	return exists, err
}

// GetEmbedding retrieves the record stored under key.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, key core.EmbeddingKey) (*core.Embedding, error) {
	dbKey, err := makeEmbeddingKey(key)
	if err != nil {
		return nil, err
	}
	var record *core.Embedding
	err = r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(dbKey)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var unmarshalErr error
			record, unmarshalErr = storage.UnmarshalEmbedding(val)
			return unmarshalErr
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ForEachEmbedding calls fn for every record of kind, in key order.
func (r *EmbeddingRepository) ForEachEmbedding(ctx context.Context, kind core.Kind, fn func(e *core.Embedding) error) error {
	prefix, err := embeddingPrefix(kind)
	if err != nil {
		return err
	}
	return r.backend.ScanPrefix(prefix, func(_, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := storage.UnmarshalEmbedding(value)
		if err != nil {
			return err
		}
		return fn(record)
	})
}

// CountEmbeddings counts the records of kind.
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context, kind core.Kind) (int, error) {
	prefix, err := embeddingPrefix(kind)
	if err != nil {
		return 0, err
	}
	return r.backend.CountPrefix(prefix)
}

// DeleteEmbedding removes a single record. Missing records are not an error.
func (r *EmbeddingRepository) DeleteEmbedding(ctx context.Context, key core.EmbeddingKey) error {
	dbKey, err := makeEmbeddingKey(key)
	if err != nil {
		return err
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(dbKey); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteEmbeddings removes every record of kind.
func (r *EmbeddingRepository) DeleteEmbeddings(ctx context.Context, kind core.Kind) (int, error) {
	prefix, err := embeddingPrefix(kind)
	if err != nil {
		return 0, err
	}
	return r.backend.DeletePrefix(prefix)
}
