package badger

import (
	"context"
	"testing"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbeddings(t *testing.T) storage.EmbeddingRepository {
	t.Helper()
	_, embeddings, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return embeddings
}

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot%dim] = 1
	return v
}

func TestEmbeddingRepository_PutGetHas(t *testing.T) {
	repo := newTestEmbeddings(t)
	ctx := context.Background()

	text := &core.Embedding{DocumentID: "d1", Kind: core.KindText, Model: "minilm", Vector: unitVector(core.TextDimension, 0)}
	image := &core.Embedding{DocumentID: "d1", ImageURL: "https://img.example.com/1.jpg", Kind: core.KindImage, Model: "clip", Vector: unitVector(core.ImageDimension, 3)}
	require.NoError(t, repo.PutEmbeddings(ctx, text, image))

	has, err := repo.HasEmbedding(ctx, core.TextKey("d1"))
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasEmbedding(ctx, core.ImageKey("d1", "https://img.example.com/2.jpg"))
	require.NoError(t, err)
	assert.False(t, has)

	got, err := repo.GetEmbedding(ctx, core.ImageKey("d1", "https://img.example.com/1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "clip", got.Model)
	assert.Equal(t, image.Vector, got.Vector)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetEmbedding(ctx, core.TextKey("missing"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEmbeddingRepository_PutRejectsInvalid(t *testing.T) {
	repo := newTestEmbeddings(t)
	ctx := context.Background()

	valid := &core.Embedding{DocumentID: "ok", Kind: core.KindText, Vector: unitVector(core.TextDimension, 0)}
	wrongDim := &core.Embedding{DocumentID: "bad", Kind: core.KindText, Vector: unitVector(10, 0)}

	err := repo.PutEmbeddings(ctx, valid, wrongDim)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	// Nothing from the failed call was written
	has, err := repo.HasEmbedding(ctx, core.TextKey("ok"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestEmbeddingRepository_ReplaceSameKey(t *testing.T) {
	repo := newTestEmbeddings(t)
	ctx := context.Background()

	require.NoError(t, repo.PutEmbeddings(ctx, &core.Embedding{DocumentID: "d", Kind: core.KindText, Model: "v1", Vector: unitVector(core.TextDimension, 0)}))
	require.NoError(t, repo.PutEmbeddings(ctx, &core.Embedding{DocumentID: "d", Kind: core.KindText, Model: "v2", Vector: unitVector(core.TextDimension, 1)}))

	count, err := repo.CountEmbeddings(ctx, core.KindText)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.GetEmbedding(ctx, core.TextKey("d"))
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Model)
}

func TestEmbeddingRepository_IterateCountDelete(t *testing.T) {
	repo := newTestEmbeddings(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, repo.PutEmbeddings(ctx, &core.Embedding{DocumentID: id, Kind: core.KindText, Vector: unitVector(core.TextDimension, 0)}))
	}
	require.NoError(t, repo.PutEmbeddings(ctx, &core.Embedding{DocumentID: "a", ImageURL: "https://img.example.com/a.jpg", Kind: core.KindImage, Vector: unitVector(core.ImageDimension, 0)}))

	var order []string
	err := repo.ForEachEmbedding(ctx, core.KindText, func(e *core.Embedding) error {
		order = append(order, e.DocumentID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	count, err := repo.CountEmbeddings(ctx, core.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, repo.DeleteEmbedding(ctx, core.TextKey("b")))
	require.NoError(t, repo.DeleteEmbedding(ctx, core.TextKey("never-existed")))

	removed, err := repo.DeleteEmbeddings(ctx, core.KindText)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Image records are untouched by a text wipe
	count, err = repo.CountEmbeddings(ctx, core.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = repo.CountEmbeddings(ctx, core.Kind("audio"))
	assert.Error(t, err)
}
