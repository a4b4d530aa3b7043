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

// Package storage provides the storage abstraction layer for newsrag.
//
// This package defines repository interfaces that decouple storage implementation
// from the embedding pipeline and the search engine.
//
// # Architecture
//
//   - DocumentRepository: news documents and their date and link indices
//   - EmbeddingRepository: text and image embedding records keyed by core.EmbeddingKey
//   - CheckpointRepository: summaries of the last run of each embedding pass
//   - VectorIndex: optional native vector index mirroring embedding records
//
// # Store handle
//
// Repositories never open storage themselves. A backend handle is opened once and
// passed to every repository constructor; whoever opened it closes it:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	docs := badger.NewDocumentRepository(backend)
//	embeddings := badger.NewEmbeddingRepository(backend)
//
// Use in tests with in-memory storage:
//
//	docs, embeddings, backend, err := badger.NewMemoryRepositories()
//
// # Serialization
//
// Documents and checkpoints are stored as JSON. Embedding records use a compact
// versioned binary layout built from mus-go serializers (see MarshalEmbedding)
// since they dominate storage size and are decoded on every search.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
