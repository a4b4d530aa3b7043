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

package ai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/poiesic/newsrag/core"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"
)

const (
	// CanonicalImageSize is the side of the square canvas fed to the image encoder.
	CanonicalImageSize = 224

	// MinImageBytes is the smallest payload accepted as an image.
	MinImageBytes = 1024

	// DefaultMaxImageBytes caps the payload read from a single response.
	DefaultMaxImageBytes = 20 << 20

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultAccept    = "image/webp,image/apng,image/*,*/*;q=0.8"
)

// Fetcher downloads images over HTTP and canonicalises them for the image encoder.
type Fetcher struct {
	client    *http.Client
	retry     RetryPolicy
	limiter   *rate.Limiter
	minBytes  int
	maxBytes  int64
	userAgent string
	logger    *slog.Logger
}

var _ ImageFetcher = (*Fetcher)(nil)

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher) error

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) error {
		if client == nil {
			return fmt.Errorf("http client must not be nil")
		}
		f.client = client
		return nil
	}
}

// WithRetryPolicy sets the attempt bound and backoff of each fetch.
func WithRetryPolicy(policy RetryPolicy) FetcherOption {
	return func(f *Fetcher) error {
		if policy.MaxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		f.retry = policy
		return nil
	}
}

// WithRateLimit limits downloads to perSecond requests with the given burst.
// A non-positive perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) error {
		if perSecond <= 0 {
			f.limiter = nil
			return nil
		}
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithMaxBytes caps the payload read from a single response.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) error {
		if n < MinImageBytes {
			return fmt.Errorf("max bytes must be at least %d", MinImageBytes)
		}
		f.maxBytes = n
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with downloads.
func WithUserAgent(ua string) FetcherOption {
	return func(f *Fetcher) error {
		f.userAgent = ua
		return nil
	}
}

// WithLogger sets a custom logger for the fetcher.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) error {
		if logger != nil {
			f.logger = logger
		}
		return nil
	}
}

// NewFetcher creates a Fetcher with three attempts, 1s base backoff and a 30s timeout.
func NewFetcher(opts ...FetcherOption) (*Fetcher, error) {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		retry:     DefaultRetryPolicy(),
		minBytes:  MinImageBytes,
		maxBytes:  DefaultMaxImageBytes,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	f.logger = f.logger.With("component", "image-fetcher")
	f.retry.Logger = f.logger
	return f, nil
}

// FetchImage downloads url and returns a 224x224 opaque RGB image.
func (f *Fetcher) FetchImage(ctx context.Context, url string) (image.Image, error) {
	if err := core.ValidateImageURL(url); err != nil {
		return nil, err
	}

	var img image.Image
	attempts, err := f.retry.Do(ctx, func() error {
		var attemptErr error
		img, attemptErr = f.fetchOnce(ctx, url)
		return attemptErr
	})
	if err != nil {
		f.logger.Debug("image fetch failed", "url", url, "attempts", attempts, "err", err)
		return nil, &core.ImageFetchError{URL: url, Attempts: attempts, Err: err}
	}
	return img, nil
}

// fetchOnce performs a single download, verification and canonicalisation.
func (f *Fetcher) fetchOnce(ctx context.Context, url string) (image.Image, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", defaultAccept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", f.maxBytes)
	}
	if len(data) < f.minBytes {
		return nil, fmt.Errorf("%w: %d bytes", core.ErrImageTooSmall, len(data))
	}

	return DecodeImage(data)
}

// DecodeImage verifies the structure of data, decodes it and canonicalises the result.
func DecodeImage(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrDecodeImage)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeImage, err)
	}
	return Canonicalize(img, CanonicalImageSize), nil
}

// Canonicalize composites src onto opaque white, downscales it to fit a size x size
// box keeping its aspect ratio (never upscaling) and centres it on a white canvas.
func Canonicalize(src image.Image, size int) *image.RGBA {
	bounds := src.Bounds()
	w, h := fitWithin(bounds.Dx(), bounds.Dy(), size)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	offset := image.Pt((size-w)/2, (size-h)/2)
	target := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(w, h))}
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, target, src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, target, src, bounds, draw.Over, nil)
	}
	return dst
}

// fitWithin returns the largest dimensions not exceeding size on either side
// that keep the w:h ratio, or w, h unchanged when they already fit.
func fitWithin(w, h, size int) (int, int) {
	if w <= size && h <= size {
		return w, h
	}
	if w >= h {
		return size, max(1, int(math.Round(float64(h)*float64(size)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(size)/float64(h)))), size
}
