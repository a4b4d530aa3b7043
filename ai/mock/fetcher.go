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
	"image"
	"image/color"
	"sync"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
)

// MockFetcher is a test double for ai.ImageFetcher.
// URLs listed in Failures fail with *core.ImageFetchError; every other valid
// URL yields a solid canonical image whose colour depends on the URL.
type MockFetcher struct {
	// FetchImageFunc is called by FetchImage if set.
	FetchImageFunc func(ctx context.Context, url string) (image.Image, error)

	// Failures lists URLs that always fail.
	Failures map[string]bool

	mu    sync.Mutex
	calls []string
}

var _ ai.ImageFetcher = (*MockFetcher)(nil)

// NewMockFetcher creates a fetcher that fails for the given URLs.
func NewMockFetcher(failing ...string) *MockFetcher {
	f := &MockFetcher{Failures: make(map[string]bool, len(failing))}
	for _, url := range failing {
		f.Failures[url] = true
	}
	return f
}

// FetchImage returns a canonical image for url.
func (f *MockFetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if f.FetchImageFunc != nil {
		return f.FetchImageFunc(ctx, url)
	}
	if err := core.ValidateImageURL(url); err != nil {
		return nil, err
	}
	if f.Failures[url] {
		return nil, &core.ImageFetchError{URL: url, Attempts: 3, Err: ai.ErrUnexpectedStatus}
	}

	sum := 0
	for _, c := range []byte(url) {
		sum += int(c)
	}
	src := image.NewUniform(color.RGBA{R: byte(sum), G: byte(sum >> 8), B: byte(len(url)), A: 255})
	img := image.NewRGBA(image.Rect(0, 0, ai.CanonicalImageSize, ai.CanonicalImageSize))
	for y := 0; y < ai.CanonicalImageSize; y++ {
		for x := 0; x < ai.CanonicalImageSize; x++ {
			img.Set(x, y, src.C)
		}
	}
	return img, nil
}

// Calls returns the URLs requested so far, in order.
func (f *MockFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
