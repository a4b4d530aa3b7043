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

// Package ai provides the embedding services used by newsrag.
//
// The package defines the interfaces the pipeline and the search engine depend on
// and the pieces shared by every implementation:
//
//   - TextEmbedder: 384-dimensional text vectors
//   - ImageEmbedder: 512-dimensional image vectors
//   - ImageFetcher: download, verification and canonicalisation of remote images
//   - Provider: aggregates both embedders for convenient initialization
//
// Every vector leaving an embedder has been checked against its kind's dimension
// and L2-normalized with NormalizeVector, so cosine similarity reduces to a dot
// product for well-formed records.
//
// # Implementation Packages
//
//   - ai/openai: text embeddings through OpenAI-compatible APIs (langchaingo)
//   - ai/clip: image embeddings through an HTTP CLIP server
//   - ai/cache: Redis-backed cache in front of a TextEmbedder
//   - ai/mock: deterministic test doubles
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithTextHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	fetcher, err := ai.NewFetcher(ai.WithRateLimit(5, 1))
//	img, err := fetcher.FetchImage(ctx, "https://example.com/photo.jpg")
//	vector, err := provider.ImageEmbedder().EmbedImage(ctx, img)
package ai
