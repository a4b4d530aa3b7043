package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocuments(t *testing.T) storage.DocumentRepository {
	t.Helper()
	docs, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return docs
}

func testDocument(id string, published time.Time) *core.Document {
	return &core.Document{
		ID:          id,
		Title:       "Title " + id,
		Body:        "Body " + id,
		Language:    "es",
		Category:    "general",
		PublishedAt: published,
		Link:        "https://news.example.com/" + id,
	}
}

func TestDocumentRepository_AddAndGet(t *testing.T) {
	repo := newTestDocuments(t)
	ctx := context.Background()

	doc := testDocument("d1", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	added, err := repo.AddDocuments(ctx, doc)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.False(t, added[0].InsertedAt.IsZero())

	got, err := repo.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Link, got.Link)

	_, err = repo.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	byLink, err := repo.FindDocumentByLink(ctx, "https://news.example.com/d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", byLink.ID)

	_, err = repo.FindDocumentByLink(ctx, "https://news.example.com/none")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentRepository_Duplicates(t *testing.T) {
	repo := newTestDocuments(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.AddDocuments(ctx, testDocument("d1", now))
	require.NoError(t, err)

	t.Run("same id", func(t *testing.T) {
		dup := testDocument("d1", now)
		dup.Link = "https://news.example.com/other"
		_, err := repo.AddDocuments(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("same link", func(t *testing.T) {
		dup := testDocument("d2", now)
		dup.Link = "https://news.example.com/d1"
		_, err := repo.AddDocuments(ctx, dup)
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		_, err := repo.AddDocuments(ctx, testDocument("d3", now), testDocument("d1", now))
		assert.ErrorIs(t, err, storage.ErrDuplicateKey)

		_, err = repo.GetDocument(ctx, "d3")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("invalid document", func(t *testing.T) {
		_, err := repo.AddDocuments(ctx, &core.Document{ID: "d4"})
		assert.ErrorIs(t, err, core.ErrInvalidDocument)
	})
}

func TestDocumentRepository_GetDocuments(t *testing.T) {
	repo := newTestDocuments(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.AddDocuments(ctx, testDocument("a", now), testDocument("b", now))
	require.NoError(t, err)

	docs, err := repo.GetDocuments(ctx, "b", "missing", "a")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
}

func TestDocumentRepository_FindAndCount(t *testing.T) {
	repo := newTestDocuments(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	oldest := testDocument("oldest", base)
	middle := testDocument("middle", base.Add(24*time.Hour))
	middle.Language = "en"
	middle.Images = []string{"https://img.example.com/m.jpg"}
	newest := testDocument("newest", base.Add(48*time.Hour))

	_, err := repo.AddDocuments(ctx, oldest, newest, middle)
	require.NoError(t, err)

	all, err := repo.FindDocuments(ctx, storage.DocumentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].ID)
	assert.Equal(t, "middle", all[1].ID)
	assert.Equal(t, "oldest", all[2].ID)

	paged, err := repo.FindDocuments(ctx, storage.DocumentFilter{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "middle", paged[0].ID)

	spanish, err := repo.FindDocuments(ctx, storage.DocumentFilter{Language: "es"})
	require.NoError(t, err)
	assert.Len(t, spanish, 2)

	_, err = repo.FindDocuments(ctx, storage.DocumentFilter{Limit: -1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	count, err := repo.CountDocuments(ctx, storage.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = repo.CountDocuments(ctx, storage.DocumentFilter{WithImages: true})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDocumentRepository_ForEachStops(t *testing.T) {
	repo := newTestDocuments(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.AddDocuments(ctx, testDocument("a", now), testDocument("b", now), testDocument("c", now))
	require.NoError(t, err)

	visited := 0
	err = repo.ForEachDocument(ctx, func(doc *core.Document) error {
		visited++
		if visited == 2 {
			return assert.AnError
		}
		return nil
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, visited)
}
