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

package mock

import "github.com/poiesic/newsrag/ai"

// MockProvider is a test double for ai.Provider.
// It aggregates mock text and image embedders.
type MockProvider struct {
	textEmbedder  *MockEmbedder
	imageEmbedder *MockImageEmbedder
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.Provider interface for consistency with production constructors.
// Use GetMockEmbedder()/GetMockImageEmbedder() to access concrete types for test assertions.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		textEmbedder:  NewMockEmbedder(),
		imageEmbedder: NewMockImageEmbedder(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
func NewMockProviderWithServices(text *MockEmbedder, image *MockImageEmbedder) ai.Provider {
	return &MockProvider{
		textEmbedder:  text,
		imageEmbedder: image,
	}
}

// TextEmbedder returns the mock text embedder.
func (p *MockProvider) TextEmbedder() ai.TextEmbedder {
	return p.textEmbedder
}

// ImageEmbedder returns the mock image embedder.
func (p *MockProvider) ImageEmbedder() ai.ImageEmbedder {
	return p.imageEmbedder
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock text embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.textEmbedder
}

// GetMockImageEmbedder returns the underlying mock image embedder for test assertions.
func (p *MockProvider) GetMockImageEmbedder() *MockImageEmbedder {
	return p.imageEmbedder
}
