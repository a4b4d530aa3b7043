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

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/newsrag"
	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/ai/cache"
	"github.com/poiesic/newsrag/ai/openai"
	"github.com/poiesic/newsrag/reembed"
	"github.com/poiesic/newsrag/storage/qdrant"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "newsrag",
		Usage: "Hybrid text and image search over news articles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"NEWSRAG_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory",
				Value:   "./newsrag_db",
				EnvVars: []string{"NEWSRAG_DB"},
			},
			&cli.StringFlag{
				Name:    "text-host",
				Usage:   "OpenAI-compatible text embedding service URL",
				Value:   ai.DefaultConfig().TextHost,
				EnvVars: []string{"NEWSRAG_TEXT_HOST"},
			},
			&cli.StringFlag{
				Name:    "text-model",
				Usage:   "Text embedding model (384 dimensions)",
				Value:   ai.DefaultConfig().TextModel,
				EnvVars: []string{"NEWSRAG_TEXT_MODEL"},
			},
			&cli.StringFlag{
				Name:    "image-host",
				Usage:   "CLIP image embedding service URL",
				Value:   ai.DefaultConfig().ImageHost,
				EnvVars: []string{"NEWSRAG_IMAGE_HOST"},
			},
			&cli.StringFlag{
				Name:    "image-model",
				Usage:   "Image embedding model (512 dimensions)",
				Value:   ai.DefaultConfig().ImageModel,
				EnvVars: []string{"NEWSRAG_IMAGE_MODEL"},
			},
			&cli.DurationFlag{
				Name:    "request-timeout",
				Usage:   "Timeout of a single embedding request",
				Value:   ai.DefaultConfig().RequestTimeout,
				EnvVars: []string{"NEWSRAG_REQUEST_TIMEOUT"},
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the query embedding cache (optional)",
				EnvVars: []string{"NEWSRAG_REDIS_URL"},
			},
			&cli.StringFlag{
				Name:    "qdrant-addr",
				Usage:   "Qdrant gRPC address used as vector index (optional)",
				EnvVars: []string{"NEWSRAG_QDRANT_ADDR"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the search API over HTTP",
				Action: serveCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "addr",
						Usage:   "Listen address",
						Value:   ":8080",
						EnvVars: []string{"NEWSRAG_ADDR"},
					},
				}, weightFlags()...),
			},
			{
				Name:      "import",
				Usage:     "Import articles from a JSON array or JSON lines file (- for stdin)",
				ArgsUsage: "<file>",
				Action:    importCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "embed",
						Usage: "Compute text embeddings while importing",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of imported articles embedded together",
						Value: 32,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent embedding batches",
						Value: 2,
					},
				},
			},
			{
				Name:   "embed-text",
				Usage:  "Rebuild the text embeddings of every document",
				Action: embedTextCommand,
				Flags:  passFlags(),
			},
			{
				Name:   "embed-images",
				Usage:  "Embed every document image",
				Action: embedImagesCommand,
				Flags: append(passFlags(),
					&cli.BoolFlag{
						Name:  "resume",
						Usage: "Keep existing image embeddings and only process missing ones",
					},
					&cli.IntFlag{
						Name:  "max-consecutive-failures",
						Usage: "Consecutive failures after which a warning and checkpoint are emitted",
						Value: reembed.DefaultConfig().MaxConsecutiveFailures,
					},
				),
			},
			{
				Name:   "search",
				Usage:  "Run a hybrid query",
				Action: searchCommand,
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Text query",
					},
					&cli.StringFlag{
						Name:  "image-url",
						Usage: "Image query URL",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results",
						Value: 5,
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print the matches of every search stage",
					},
				}, weightFlags()...),
			},
			{
				Name:   "stats",
				Usage:  "Print document and embedding counts",
				Action: statsCommand,
			},
			{
				Name:   "validate-embeddings",
				Usage:  "Report stored embeddings with a wrong dimension or norm",
				Action: validateEmbeddingsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "delete",
						Usage: "Delete the invalid embeddings",
					},
				},
			},
		},
	}
}

func passFlags() []cli.Flag {
	defaults := reembed.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "batch-size",
			Usage: "Number of documents to process in each batch",
			Value: defaults.BatchSize,
		},
		&cli.IntFlag{
			Name:  "report-interval",
			Usage: "Report progress every N items",
			Value: defaults.ReportInterval,
		},
		&cli.IntFlag{
			Name:  "max-retries",
			Usage: "Maximum retry attempts for failed operations",
			Value: defaults.MaxRetries,
		},
		&cli.DurationFlag{
			Name:  "retry-delay",
			Usage: "Base delay for exponential backoff",
			Value: defaults.RetryDelay,
		},
	}
}

func weightFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:  "text-weight",
			Usage: "Weight of the text similarity in the fused score",
			Value: 0.6,
		},
		&cli.Float64Flag{
			Name:  "image-weight",
			Usage: "Weight of the image similarity in the fused score",
			Value: 0.4,
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// openDatabase opens the store with the provider, query cache and vector index
// selected by the global flags. Optional backends that cannot be reached are
// skipped with a warning.
func openDatabase(c *cli.Context) (*newsrag.Database, error) {
	dbPath := c.String("db")
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	aiConfig := ai.NewConfig(
		ai.WithTextHost(c.String("text-host")),
		ai.WithTextModel(c.String("text-model")),
		ai.WithImageHost(c.String("image-host")),
		ai.WithImageModel(c.String("image-model")),
		ai.WithRequestTimeout(c.Duration("request-timeout")),
	)
	if err := aiConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}

	provider, err := openai.NewProvider(aiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	opts := []newsrag.DatabaseOption{newsrag.WithProvider(provider), newsrag.WithLogger(slog.Default())}

	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	if url := c.String("redis-url"); url != "" {
		rdb, err := cache.Dial(ctx, url)
		if err != nil {
			slog.Warn("query cache disabled", "err", err)
		} else {
			cached, err := cache.NewCachedTextEmbedder(provider.TextEmbedder(), rdb)
			if err != nil {
				rdb.Close()
				return nil, err
			}
			opts = append(opts, newsrag.WithQueryEmbedder(cached), newsrag.WithProvider(closingProvider{Provider: provider, rdb: rdb}))
		}
	}

	if addr := c.String("qdrant-addr"); addr != "" {
		index, err := qdrant.NewIndex(ctx, addr)
		if err != nil {
			slog.Warn("qdrant index disabled, searching the store directly", "err", err)
		} else {
			opts = append(opts, newsrag.WithIndex(index))
		}
	}

	db, err := newsrag.NewDatabase(dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// closingProvider closes the cache's redis client together with the provider.
type closingProvider struct {
	ai.Provider
	rdb *redis.Client
}

func (p closingProvider) Close() error {
	p.rdb.Close()
	return p.Provider.Close()
}
