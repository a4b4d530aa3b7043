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

package ai

import (
	"context"
	"image"
)

// TextEmbedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type TextEmbedder interface {
	// EmbedText generates an L2-normalized vector of core.TextDimension values.
	// Returns core.ErrEmptyInput when text is blank; callers treat that as "no embedding".
	// Returns *core.EmbeddingError when the encoder fails and
	// *core.DimensionMismatchError when it answers with the wrong length.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Every text must be non-blank.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the encoder; it is stored with every record.
	Model() string
}

// ImageEmbedder generates vector embeddings from canonical images.
// Implementations must be thread-safe for concurrent use.
type ImageEmbedder interface {
	// EmbedImage generates an L2-normalized vector of core.ImageDimension values.
	// Returns *core.EmbeddingError when the encoder fails and
	// *core.DimensionMismatchError when it answers with the wrong length.
	EmbedImage(ctx context.Context, img image.Image) ([]float32, error)

	// Model identifies the encoder; it is stored with every record.
	Model() string
}

// ImageFetcher downloads a remote image and returns it in canonical form.
type ImageFetcher interface {
	// FetchImage returns a 224x224 opaque RGB image.
	// Returns *core.ValidationError for URLs that are not absolute http(s) and
	// *core.ImageFetchError once every attempt has failed.
	FetchImage(ctx context.Context, url string) (image.Image, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// TextEmbedder returns the text embedding service.
	TextEmbedder() TextEmbedder

	// ImageEmbedder returns the image embedding service.
	ImageEmbedder() ImageEmbedder

	// Close releases resources held by the provider and its services.
	Close() error
}
