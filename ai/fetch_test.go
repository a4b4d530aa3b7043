package ai

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noisyPNG encodes a w x h image of random pixels, which never compresses below 1KB.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.Greater(t, buf.Len(), MinImageBytes)
	return buf.Bytes()
}

func fastFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}))
	require.NoError(t, err)
	return f
}

func TestFetcher_Success(t *testing.T) {
	payload := noisyPNG(t, 300, 150)
	var userAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	img, err := fastFetcher(t).FetchImage(context.Background(), srv.URL+"/photo.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, CanonicalImageSize, CanonicalImageSize), img.Bounds())
	assert.NotEmpty(t, userAgent)
}

func TestFetcher_FailTwiceThenSucceed(t *testing.T) {
	payload := noisyPNG(t, 64, 64)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	img, err := fastFetcher(t).FetchImage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_FailAllThree(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := fastFetcher(t).FetchImage(context.Background(), srv.URL)
	require.Error(t, err)

	var fetchErr *core.ImageFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, srv.URL, fetchErr.URL)
	assert.ErrorIs(t, err, core.ErrImageFetch)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_RetryLogsCarryComponent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f, err := NewFetcher(WithLogger(logger), WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}))
	require.NoError(t, err)

	_, err = f.FetchImage(context.Background(), srv.URL)
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	retries := 0
	for _, line := range lines {
		if strings.Contains(line, "operation failed, will retry") {
			retries++
			assert.Contains(t, line, "component=image-fetcher")
		}
	}
	assert.Equal(t, 2, retries)
}

func TestFetcher_RejectsUndersizedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte{0x89}, MinImageBytes-1))
	}))
	defer srv.Close()

	_, err := fastFetcher(t).FetchImage(context.Background(), srv.URL)
	assert.ErrorIs(t, err, core.ErrImageFetch)
	assert.ErrorIs(t, err, core.ErrImageTooSmall)
}

func TestFetcher_RejectsCorruptPayload(t *testing.T) {
	payload := noisyPNG(t, 64, 64)
	// Keep the header so the structural check passes, then truncate the pixel data
	corrupt := append([]byte{}, payload[:MinImageBytes+10]...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(corrupt)
	}))
	defer srv.Close()

	_, err := fastFetcher(t).FetchImage(context.Background(), srv.URL)
	assert.ErrorIs(t, err, core.ErrImageFetch)
	assert.ErrorIs(t, err, ErrDecodeImage)
}

func TestFetcher_InvalidURLNotFetched(t *testing.T) {
	for _, url := range []string{"", "not a url", "/relative/path.jpg", "ftp://example.com/a.jpg", "http://"} {
		t.Run(url, func(t *testing.T) {
			_, err := fastFetcher(t).FetchImage(context.Background(), url)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.False(t, errors.Is(err, core.ErrImageFetch))
		})
	}
}

func TestFetcher_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fastFetcher(t).FetchImage(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFetcher_Options(t *testing.T) {
	_, err := NewFetcher(WithRetryPolicy(RetryPolicy{}))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	_, err = NewFetcher(WithHTTPClient(nil))
	assert.Error(t, err)

	_, err = NewFetcher(WithMaxBytes(10))
	assert.Error(t, err)

	f, err := NewFetcher(WithRateLimit(10, 0))
	require.NoError(t, err)
	assert.NotNil(t, f.limiter)
}

func TestCanonicalize_PadsWideImage(t *testing.T) {
	red := color.RGBA{R: 255, A: 255}
	src := image.NewRGBA(image.Rect(0, 0, 448, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 448; x++ {
			src.Set(x, y, red)
		}
	}

	dst := Canonicalize(src, CanonicalImageSize)
	require.Equal(t, image.Rect(0, 0, 224, 224), dst.Bounds())

	// Scaled to 224x112, centred vertically between white bands
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(112, 10))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(112, 213))
	center := dst.RGBAAt(112, 112)
	assert.Equal(t, uint8(255), center.R)
	assert.Less(t, center.G, uint8(5))
}

func TestCanonicalize_NeverUpscales(t *testing.T) {
	blue := color.RGBA{B: 255, A: 255}
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 100; x++ {
			src.Set(x, y, blue)
		}
	}

	dst := Canonicalize(src, CanonicalImageSize)
	// Offset is ((224-100)/2, (224-50)/2) = (62, 87)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(61, 100))
	assert.Equal(t, blue, dst.RGBAAt(62, 87))
	assert.Equal(t, blue, dst.RGBAAt(161, 136))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(162, 136))
}

func TestCanonicalize_TransparencyBecomesWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 224, 224))
	dst := Canonicalize(src, CanonicalImageSize)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(223, 223))
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{100, 50, 100, 50},
		{224, 224, 224, 224},
		{448, 224, 224, 112},
		{224, 448, 112, 224},
		{1000, 1, 224, 1},
	}
	for _, tt := range tests {
		w, h := fitWithin(tt.w, tt.h, CanonicalImageSize)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
	}
}
