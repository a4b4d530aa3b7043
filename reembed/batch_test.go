package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/newsrag/ai/mock"
	"github.com/poiesic/newsrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unnormalized returns a vector of the text dimension with magnitude 3 * sqrt(dim / 3).
func unnormalized() []float32 {
	v := make([]float32, core.TextDimension)
	for i := range v {
		v[i] = float32(i%3 + 1)
	}
	return v
}

func TestTextBatchProcessor_Process(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		result := make([][]float32, len(texts))
		for i := range texts {
			result[i] = unnormalized()
		}
		return result, nil
	}
	processor := NewTextBatchProcessor(embedder, 3, time.Millisecond)

	docs := []*core.Document{
		newsDoc("a", "Election results", "Votes were counted overnight"),
		newsDoc("b", "Storm warning", "Heavy rain expected"),
	}
	records, err := processor.Process(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, records, 2)

	for i, record := range records {
		assert.Equal(t, docs[i].ID, record.DocumentID)
		assert.Equal(t, core.KindText, record.Kind)
		assert.Equal(t, "mock-text", record.Model)
		require.Len(t, record.Vector, core.TextDimension)

		var magnitude float32
		for _, v := range record.Vector {
			magnitude += v * v
		}
		assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
	}
}

func TestTextBatchProcessor_EmptyBatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	processor := NewTextBatchProcessor(embedder, 3, time.Millisecond)

	records, err := processor.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, embedder.CallCount(), "should not call embedder for empty batch")
}

func TestTextBatchProcessor_RetrySuccess(t *testing.T) {
	attempts := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("temporary failure")
		}
		return [][]float32{mock.DeterministicVector(texts[0], core.TextDimension)}, nil
	}
	processor := NewTextBatchProcessor(embedder, 3, time.Millisecond)

	records, err := processor.Process(context.Background(), []*core.Document{newsDoc("a", "t", "b")})
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 3, attempts, "should succeed on third attempt")
}

func TestTextBatchProcessor_RetryExhausted(t *testing.T) {
	attempts := 0
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		attempts++
		return nil, errors.New("permanent failure")
	}
	processor := NewTextBatchProcessor(embedder, 3, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Document{newsDoc("a", "t", "b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestTextBatchProcessor_CountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{unnormalized()}, nil
	}
	processor := NewTextBatchProcessor(embedder, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Document{
		newsDoc("a", "t", "b"),
		newsDoc("b", "t", "b"),
	})
	assert.ErrorIs(t, err, ErrCountMismatch)
}

func TestTextBatchProcessor_DimensionMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}}, nil
	}
	processor := NewTextBatchProcessor(embedder, 1, time.Millisecond)

	_, err := processor.Process(context.Background(), []*core.Document{newsDoc("a", "t", "b")})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}
