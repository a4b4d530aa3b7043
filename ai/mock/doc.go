// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.TextEmbedder, ai.ImageEmbedder,
// ai.ImageFetcher and ai.Provider for use in unit tests. The mocks allow tests to
// run without external AI services or network access.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.TextEmbedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	mockEmbedder := mock.NewMockEmbedder()
//	mockEmbedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, &core.EmbeddingError{Kind: core.KindText, Err: errors.New("down")}
//	}
//
//	// Fetcher failing for one URL
//	fetcher := mock.NewMockFetcher("https://img.example.com/broken.jpg")
//
// # Default Behavior
//
//   - MockEmbedder: deterministic unit vectors based on a text hash
//   - MockImageEmbedder: deterministic unit vectors based on the centre pixel
//   - MockFetcher: solid canonical images whose colour depends on the URL
package mock
