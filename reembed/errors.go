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

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a pass is built without a document repository.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrEmbeddingRepositoryRequired is returned when a pass is built without an embedding repository.
	ErrEmbeddingRepositoryRequired = errors.New("embedding repository is required")

	// ErrEmbedderRequired is returned when a pass is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrFetcherRequired is returned when the image pass is built without an image fetcher.
	ErrFetcherRequired = errors.New("image fetcher is required")

	// ErrInvalidConfig is returned when a Config fails validation.
	ErrInvalidConfig = errors.New("invalid reembed config")

	// ErrCountMismatch is returned when an encoder returns a different number of vectors than inputs.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
