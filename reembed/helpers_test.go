package reembed

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
	"github.com/stretchr/testify/require"
)

type testStore struct {
	docs        storage.DocumentRepository
	embeddings  storage.EmbeddingRepository
	checkpoints *badger.CheckpointRepository
}

func setupTestDB(t *testing.T) *testStore {
	t.Helper()
	docs, embeddings, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return &testStore{
		docs:        docs,
		embeddings:  embeddings,
		checkpoints: badger.NewCheckpointRepository(backend),
	}
}

// seedDocuments stores docs, assigning ids and dates when missing.
func seedDocuments(t *testing.T, store *testStore, docs ...*core.Document) []*core.Document {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, doc := range docs {
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("doc-%02d", i)
		}
		if doc.PublishedAt.IsZero() {
			doc.PublishedAt = base.Add(time.Duration(i) * time.Hour)
		}
	}
	added, err := store.docs.AddDocuments(context.Background(), docs...)
	require.NoError(t, err)
	return added
}

func newsDoc(id, title, body string, images ...string) *core.Document {
	return &core.Document{ID: id, Title: title, Body: body, Images: images}
}

func testConfig() *Config {
	return &Config{
		BatchSize:              2,
		ReportInterval:         1,
		MaxRetries:             3,
		RetryDelay:             time.Millisecond,
		MaxConsecutiveFailures: 5,
	}
}

// recordingIndex captures what a pass mirrors into the vector index.
type recordingIndex struct {
	indexed  []*core.Embedding
	resets   []core.Kind
	indexErr error
}

func (r *recordingIndex) Index(ctx context.Context, records ...*core.Embedding) error {
	if r.indexErr != nil {
		return r.indexErr
	}
	r.indexed = append(r.indexed, records...)
	return nil
}

func (r *recordingIndex) Reset(ctx context.Context, kind core.Kind) error {
	r.resets = append(r.resets, kind)
	return nil
}

func (r *recordingIndex) Search(ctx context.Context, vector []float32, kind core.Kind, topK int) ([]core.Match, error) {
	return nil, nil
}

func (r *recordingIndex) Close() error { return nil }
