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


// Package cache keeps query embeddings in Redis so repeated searches skip the encoder.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a cached query vector lives.
	DefaultTTL = 24 * time.Hour

	// DefaultPrefix namespaces every cache key.
	DefaultPrefix = "newsrag:qemb"
)

// CachedTextEmbedder wraps an ai.TextEmbedder with a Redis cache for EmbedText.
// Batch calls go straight to the wrapped embedder. Cache failures are logged
// and never fail the request.
type CachedTextEmbedder struct {
	next   ai.TextEmbedder
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

var _ ai.TextEmbedder = (*CachedTextEmbedder)(nil)

// Option configures a CachedTextEmbedder.
type Option func(*CachedTextEmbedder) error

// WithTTL sets the lifetime of cached vectors.
func WithTTL(ttl time.Duration) Option {
	return func(c *CachedTextEmbedder) error {
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive")
		}
		c.ttl = ttl
		return nil
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(c *CachedTextEmbedder) error {
		if prefix == "" {
			return fmt.Errorf("prefix must not be empty")
		}
		c.prefix = prefix
		return nil
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedTextEmbedder) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// Dial parses a redis:// URL and verifies the server answers.
func Dial(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewCachedTextEmbedder wraps next with a cache stored in rdb.
func NewCachedTextEmbedder(next ai.TextEmbedder, rdb redis.Cmdable, opts ...Option) (*CachedTextEmbedder, error) {
	if next == nil {
		return nil, errors.New("text embedder is required")
	}
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	c := &CachedTextEmbedder{
		next:   next,
		rdb:    rdb,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "query-cache")
	return c, nil
}

// Model returns the wrapped embedder's model.
func (c *CachedTextEmbedder) Model() string {
	return c.next.Model()
}

// EmbedText returns the cached vector for text or computes and caches it.
func (c *CachedTextEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.ErrEmptyInput
	}

	key := c.Key(text)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		vector, decodeErr := storage.UnmarshalVector(data)
		if decodeErr == nil && core.CheckDimension(core.KindText, vector) == nil {
			c.logger.Debug("cache hit", "key", key)
			return vector, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("cache read failed", "err", err)
	}

	vector, err := c.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.rdb.Set(ctx, key, storage.MarshalVector(vector), c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "err", err)
	}
	return vector, nil
}

// EmbedTexts delegates to the wrapped embedder.
func (c *CachedTextEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return c.next.EmbedTexts(ctx, texts)
}

// Key returns the cache key of text: prefix, model and a BLAKE2b-256 digest.
func (c *CachedTextEmbedder) Key(text string) string {
	h, _ := blake2b.New(32, nil)
	h.Write([]byte(strings.TrimSpace(text)))
	return c.prefix + ":" + c.next.Model() + ":" + hex.EncodeToString(h.Sum(nil))
}
