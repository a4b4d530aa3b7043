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

import (
	"context"
	"hash/fnv"
	"image"
	"strings"
	"sync"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
)

// MockEmbedder is a test double for ai.TextEmbedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	mu        sync.Mutex
	callCount int
}

var _ ai.TextEmbedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions via GetMockEmbedder().
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{}
}

// Model returns a fixed identifier.
func (m *MockEmbedder) Model() string {
	return "mock-text"
}

// EmbedText generates a deterministic unit vector based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.count()

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrEmptyInput
	}
	return DeterministicVector(text, core.TextDimension), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.count()

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, core.ErrEmptyInput
		}
		embeddings[i] = DeterministicVector(text, core.TextDimension)
	}
	return embeddings, nil
}

// CallCount returns the number of times any method was called.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *MockEmbedder) count() {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()
}

// MockImageEmbedder is a test double for ai.ImageEmbedder.
type MockImageEmbedder struct {
	// EmbedImageFunc is called by EmbedImage if set.
	// If nil, derives a vector from the image's centre pixel.
	EmbedImageFunc func(ctx context.Context, img image.Image) ([]float32, error)

	mu        sync.Mutex
	callCount int
}

var _ ai.ImageEmbedder = (*MockImageEmbedder)(nil)

// NewMockImageEmbedder creates a mock image embedder with default deterministic behavior.
func NewMockImageEmbedder() *MockImageEmbedder {
	return &MockImageEmbedder{}
}

// Model returns a fixed identifier.
func (m *MockImageEmbedder) Model() string {
	return "mock-image"
}

// EmbedImage returns a deterministic unit vector for img.
func (m *MockImageEmbedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.EmbedImageFunc != nil {
		return m.EmbedImageFunc(ctx, img)
	}
	if img == nil {
		return nil, core.ErrEmptyInput
	}
	b := img.Bounds()
	r, g, bl, _ := img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	seed := string([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)})
	return DeterministicVector(seed, core.ImageDimension), nil
}

// CallCount returns the number of times EmbedImage was called.
func (m *MockImageEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// DeterministicVector creates a unit vector of dim values from text.
// It uses an FNV hash so the same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}
	return ai.NormalizeVector(vector)
}
