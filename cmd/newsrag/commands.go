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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/poiesic/newsrag/api"
	"github.com/poiesic/newsrag/ingestion"
	"github.com/poiesic/newsrag/reembed"
	"github.com/poiesic/newsrag/search"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(search.WithWeights(weights(c)))
	if err != nil {
		return fmt.Errorf("failed to create searcher: %w", err)
	}
	defer searcher.Close()

	handler := api.NewHandler(searcher, db.DocumentRepository(), db, slog.Default())
	srv := &http.Server{
		Addr:              c.String("addr"),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-c.Context.Done():
	}

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Context), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func importCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one input file")
	}

	var input io.Reader = os.Stdin
	if path := c.Args().First(); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		input = f
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []ingestion.Option{ingestion.WithBatchSize(c.Int("batch-size"))}
	if c.Bool("embed") {
		opts = append(opts, ingestion.WithTextEmbedding(db.Provider().TextEmbedder(), db.EmbeddingRepository(), c.Int("workers")))
	}
	importer, err := db.NewImporter(opts...)
	if err != nil {
		return fmt.Errorf("failed to create importer: %w", err)
	}
	defer importer.Release()

	report, err := importer.Import(c.Context, input)
	if report != nil {
		out := c.App.Writer
		fmt.Fprintf(out, "Read: %d, imported: %d, duplicates: %d, rejected: %d\n",
			report.Read, report.Imported, report.Duplicates, report.Rejected)
		if c.Bool("embed") {
			fmt.Fprintf(out, "Embedded: %d, failed: %d\n", report.Embedded, report.EmbedFailed)
		}
		for _, e := range report.Errors {
			fmt.Fprintf(out, "  %v\n", e)
		}
	}
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func passConfig(c *cli.Context) *reembed.Config {
	config := reembed.DefaultConfig()
	config.BatchSize = c.Int("batch-size")
	config.ReportInterval = c.Int("report-interval")
	config.MaxRetries = c.Int("max-retries")
	config.RetryDelay = c.Duration("retry-delay")
	return config
}

func embedTextCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	pass, err := db.NewTextPass(passConfig(c), reembed.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Text model: %s\n\n", c.String("text-model"))

	report, err := pass.Run(c.Context)
	if report != nil {
		fmt.Fprintln(c.App.Writer, report)
	}
	if err != nil {
		return fmt.Errorf("text embedding failed: %w", err)
	}
	return nil
}

func embedImagesCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	config := passConfig(c)
	config.Resume = c.Bool("resume")
	config.MaxConsecutiveFailures = c.Int("max-consecutive-failures")

	pass, err := db.NewImagePass(config, reembed.WithProgress(c.App.ErrWriter))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", c.String("db"))
	fmt.Fprintf(c.App.ErrWriter, "Image model: %s\n", c.String("image-model"))
	fmt.Fprintf(c.App.ErrWriter, "Resume: %v\n\n", config.Resume)

	report, err := pass.Run(c.Context)
	if report != nil {
		fmt.Fprintln(c.App.Writer, report)
		for _, e := range report.Errors {
			fmt.Fprintf(c.App.Writer, "  %v\n", e)
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("image embedding interrupted, rerun with --resume to continue: %w", err)
		}
		return fmt.Errorf("image embedding failed: %w", err)
	}
	return nil
}

func weights(c *cli.Context) search.Weights {
	return search.Weights{Text: c.Float64("text-weight"), Image: c.Float64("image-weight")}
}

func searchCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	searcher, err := db.NewSearcher(search.WithWeights(weights(c)))
	if err != nil {
		return err
	}
	defer searcher.Close()

	query := search.Query{Text: c.String("query"), ImageURL: c.String("image-url"), Limit: c.Int("limit")}
	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = newExplainMonitor(c.App.ErrWriter)
	}

	results, err := searcher.SearchWithMonitor(c.Context, query, monitor)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d results\n", len(results))
	for i, res := range results {
		fmt.Fprintf(out, "%d. [%0.3f] %s (%s)\n", i+1, res.Score, res.Document.Title, res.Document.ID)
		fmt.Fprintf(out, "   text=%0.3f image=%0.3f %s\n", res.SimText, res.SimImage, res.Document.Link)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(c.Context)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}

func validateEmbeddingsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	check, err := db.ValidateEmbeddings(c.Context, c.Bool("delete"))
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Checked: %d, invalid: %d, deleted: %d\n", check.Checked, len(check.Invalid), check.Deleted)
	for _, key := range check.Invalid {
		fmt.Fprintf(out, "  %s\n", key)
	}
	return nil
}
