package reembed

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/ai/mock"
	"github.com/poiesic/newsrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	goodURL = "https://img.example.com/good.jpg"
	badURL  = "https://img.example.com/missing.jpg"
)

func newImagePass(t *testing.T, store *testStore, fetcher ai.ImageFetcher, config *Config, opts ...Option) *ImagePass {
	t.Helper()
	pass, err := NewImagePass(store.docs, store.embeddings, fetcher, mock.NewMockImageEmbedder(), config, opts...)
	require.NoError(t, err)
	return pass
}

func TestNewImagePass_RequiresCollaborators(t *testing.T) {
	store := setupTestDB(t)
	fetcher := mock.NewMockFetcher()
	embedder := mock.NewMockImageEmbedder()

	_, err := NewImagePass(nil, store.embeddings, fetcher, embedder, nil)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewImagePass(store.docs, nil, fetcher, embedder, nil)
	assert.ErrorIs(t, err, ErrEmbeddingRepositoryRequired)
	_, err = NewImagePass(store.docs, store.embeddings, nil, embedder, nil)
	assert.ErrorIs(t, err, ErrFetcherRequired)
	_, err = NewImagePass(store.docs, store.embeddings, fetcher, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

// Three documents, two with one image each: one fetchable, one permanently failing.
func TestImagePass_EndToEnd(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store,
		newsDoc("plain", "No pictures", "Text only"),
		newsDoc("with-good", "Parade", "Crowds gathered", goodURL),
		newsDoc("with-bad", "Flood", "Rivers rose", badURL),
	)

	fetcher := mock.NewMockFetcher(badURL)
	index := &recordingIndex{}
	var progress bytes.Buffer
	pass := newImagePass(t, store, fetcher, testConfig(),
		WithIndex(index), WithProgress(&progress), WithCheckpoints(store.checkpoints))

	report, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, PassImage, report.Pass)
	assert.Equal(t, 2, report.Eligible)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Skipped)
	assert.InDelta(t, 50.0, report.Coverage(), 0.001)
	require.Len(t, report.Errors, 1)
	assert.ErrorIs(t, report.Errors[0], core.ErrImageFetch)

	record, err := store.embeddings.GetEmbedding(ctx, core.ImageKey("with-good", goodURL))
	require.NoError(t, err)
	assert.Len(t, record.Vector, core.ImageDimension)
	assert.Equal(t, "mock-image", record.Model)

	has, err := store.embeddings.HasEmbedding(ctx, core.ImageKey("with-bad", badURL))
	require.NoError(t, err)
	assert.False(t, has)

	assert.Equal(t, []core.Kind{core.KindImage}, index.resets)
	require.Len(t, index.indexed, 1)
	assert.Equal(t, goodURL, index.indexed[0].ImageURL)
	assert.Contains(t, progress.String(), "coverage 50.0%")

	checkpoint, err := store.checkpoints.LoadCheckpoint(ctx, PassImage)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.True(t, checkpoint.Completed)
	assert.Equal(t, 1, checkpoint.Failed)
}

func TestImagePass_ResumeIsIdempotent(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store,
		newsDoc("with-good", "Parade", "Crowds gathered", goodURL),
		newsDoc("with-bad", "Flood", "Rivers rose", badURL),
	)

	config := testConfig()
	config.Resume = true

	first, err := newImagePass(t, store, mock.NewMockFetcher(badURL), config).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Succeeded)

	before, err := store.embeddings.GetEmbedding(ctx, core.ImageKey("with-good", goodURL))
	require.NoError(t, err)

	fetcher := mock.NewMockFetcher(badURL)
	second, err := newImagePass(t, store, fetcher, config).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.AlreadyDone)
	assert.Zero(t, second.Succeeded)
	assert.Equal(t, 1, second.Failed, "failed pairs are retried on resume")
	assert.Equal(t, []string{badURL}, fetcher.Calls(), "done pairs are not fetched again")
	assert.InDelta(t, first.Coverage(), second.Coverage(), 0.001)

	after, err := store.embeddings.GetEmbedding(ctx, core.ImageKey("with-good", goodURL))
	require.NoError(t, err)
	assert.Equal(t, before.Vector, after.Vector)
	assert.Equal(t, before.CreatedAt, after.CreatedAt, "record is not rewritten")

	count, err := store.embeddings.CountEmbeddings(ctx, core.KindImage)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestImagePass_ResumeMirrorsStoredRecords(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store, newsDoc("with-good", "Parade", "Crowds gathered", goodURL))

	config := testConfig()
	config.Resume = true
	_, err := newImagePass(t, store, mock.NewMockFetcher(), config).Run(ctx)
	require.NoError(t, err)

	index := &recordingIndex{}
	fetcher := mock.NewMockFetcher()
	report, err := newImagePass(t, store, fetcher, config, WithIndex(index)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyDone)
	assert.Empty(t, fetcher.Calls())
	assert.Empty(t, index.resets, "resume keeps the index")

	stored, err := store.embeddings.GetEmbedding(ctx, core.ImageKey("with-good", goodURL))
	require.NoError(t, err)
	require.Len(t, index.indexed, 1)
	assert.Equal(t, stored.Key(), index.indexed[0].Key())
	assert.Equal(t, stored.Vector, index.indexed[0].Vector)
}

func TestImagePass_WithoutResumeRebuilds(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store, newsDoc("with-good", "Parade", "Crowds gathered", goodURL))

	orphan := &core.Embedding{
		DocumentID: "gone",
		ImageURL:   "https://img.example.com/orphan.jpg",
		Kind:       core.KindImage,
		Model:      "old",
		Vector:     mock.DeterministicVector("orphan", core.ImageDimension),
	}
	require.NoError(t, store.embeddings.PutEmbeddings(ctx, orphan))

	fetcher := mock.NewMockFetcher()
	report, err := newImagePass(t, store, fetcher, testConfig()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.AlreadyDone)

	has, err := store.embeddings.HasEmbedding(ctx, orphan.Key())
	require.NoError(t, err)
	assert.False(t, has, "a full run starts from an empty image set")
}

func TestImagePass_SkipsInvalidReferences(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store,
		newsDoc("mixed", "Gallery", "Photos",
			"/relative/path.jpg", "ftp://img.example.com/a.jpg", "not a url", "  ", goodURL, goodURL),
	)

	fetcher := mock.NewMockFetcher()
	report, err := newImagePass(t, store, fetcher, testConfig()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 1, report.Eligible, "repeated references collapse")
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{goodURL}, fetcher.Calls(), "invalid references are never fetched")
}

func TestImagePass_ConsecutiveFailureThreshold(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var failing []string
	docs := make([]*core.Document, 0, 8)
	for i := 0; i < 7; i++ {
		url := "https://img.example.com/broken-" + string(rune('a'+i)) + ".jpg"
		failing = append(failing, url)
		docs = append(docs, &core.Document{
			ID:          "broken-" + string(rune('a'+i)),
			Title:       "broken",
			Body:        "body",
			Images:      []string{url},
			PublishedAt: time.Date(2024, 1, 10-i, 0, 0, 0, 0, time.UTC),
		})
	}
	// Oldest document, processed last
	docs = append(docs, &core.Document{
		ID:          "last",
		Title:       "works",
		Body:        "body",
		Images:      []string{goodURL},
		PublishedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	seedDocuments(t, store, docs...)

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))

	config := testConfig()
	config.MaxConsecutiveFailures = 3
	report, err := newImagePass(t, store, mock.NewMockFetcher(failing...), config,
		WithLogger(logger), WithCheckpoints(store.checkpoints)).Run(ctx)
	require.NoError(t, err, "reaching the threshold does not abort the pass")

	assert.Equal(t, 7, report.Failed)
	assert.Equal(t, 1, report.Succeeded, "items after the threshold are still processed")
	// 7 failures with a threshold of 3 trip the warning twice; the counter resets each time
	assert.Equal(t, 2, strings.Count(logs.String(), "consecutive image failures reached threshold"))
}

func TestImagePass_EncoderFailureIsItemFailure(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store,
		newsDoc("a", "Parade", "Crowds gathered", goodURL),
		newsDoc("b", "Flood", "Rivers rose", "https://img.example.com/other.jpg"),
	)

	embedder := mock.NewMockImageEmbedder()
	calls := 0
	embedder.EmbedImageFunc = func(ctx context.Context, img image.Image) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, &core.EmbeddingError{Kind: core.KindImage, Err: errors.New("bad tensor")}
		}
		return []float32{1, 2, 3}, nil // wrong dimension
	}

	pass, err := NewImagePass(store.docs, store.embeddings, mock.NewMockFetcher(), embedder, testConfig())
	require.NoError(t, err)

	report, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, report.Errors, 2)
	assert.ErrorIs(t, report.Errors[0], core.ErrEmbedding)
	assert.ErrorIs(t, report.Errors[1], core.ErrDimensionMismatch)

	count, err := store.embeddings.CountEmbeddings(ctx, core.KindImage)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImagePass_Cancellation(t *testing.T) {
	store := setupTestDB(t)
	seedDocuments(t, store,
		newsDoc("a", "one", "body", "https://img.example.com/1.jpg"),
		newsDoc("b", "two", "body", "https://img.example.com/2.jpg"),
		newsDoc("c", "three", "body", "https://img.example.com/3.jpg"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := mock.NewMockFetcher()
	calls := 0
	fetcher.FetchImageFunc = func(ctx context.Context, url string) (image.Image, error) {
		calls++
		if calls == 2 {
			cancel()
			return nil, &core.ImageFetchError{URL: url, Attempts: 1, Err: ctx.Err()}
		}
		return image.NewRGBA(image.Rect(0, 0, ai.CanonicalImageSize, ai.CanonicalImageSize)), nil
	}

	report, err := newImagePass(t, store, fetcher, testConfig(), WithCheckpoints(store.checkpoints)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Succeeded)
	assert.Zero(t, report.Failed, "an interrupted item is not a failure")
	assert.Equal(t, 2, calls)

	checkpoint, err := store.checkpoints.LoadCheckpoint(context.Background(), PassImage)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	assert.False(t, checkpoint.Completed)

	// Restarting in resume mode picks up where the run stopped
	config := testConfig()
	config.Resume = true
	report, err = newImagePass(t, store, mock.NewMockFetcher(), config).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyDone)
	assert.Equal(t, 2, report.Succeeded)
	assert.InDelta(t, 100.0, report.Coverage(), 0.001)
}

// noisyPNG encodes random pixels so the payload never compresses below the minimum size.
func noisyPNG(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.Intn(256))
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImagePass_FetchRetry(t *testing.T) {
	payload := noisyPNG(t)
	var flakyCalls, deadCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/flaky.png", func(w http.ResponseWriter, r *http.Request) {
		if flakyCalls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(payload)
	})
	mux.HandleFunc("/dead.png", func(w http.ResponseWriter, r *http.Request) {
		deadCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/tiny.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload[:512])
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := setupTestDB(t)
	ctx := context.Background()
	seedDocuments(t, store,
		newsDoc("flaky", "Flaky", "body", srv.URL+"/flaky.png"),
		newsDoc("dead", "Dead", "body", srv.URL+"/dead.png"),
		newsDoc("tiny", "Tiny", "body", srv.URL+"/tiny.png"),
	)

	fetcher, err := ai.NewFetcher(ai.WithRetryPolicy(ai.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	require.NoError(t, err)
	embedder := mock.NewMockImageEmbedder()
	pass, err := NewImagePass(store.docs, store.embeddings, fetcher, embedder, testConfig())
	require.NoError(t, err)

	report, err := pass.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, int32(3), flakyCalls.Load())
	assert.Equal(t, int32(3), deadCalls.Load())
	assert.Equal(t, 1, embedder.CallCount(), "rejected payloads never reach the encoder")

	has, err := store.embeddings.HasEmbedding(ctx, core.ImageKey("flaky", srv.URL+"/flaky.png"))
	require.NoError(t, err)
	assert.True(t, has)

	var tooSmall bool
	for _, e := range report.Errors {
		if errors.Is(e, core.ErrImageTooSmall) {
			tooSmall = true
		}
	}
	assert.True(t, tooSmall)
}
