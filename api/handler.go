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

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/poiesic/newsrag"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/ingestion"
	"github.com/poiesic/newsrag/search"
	"github.com/poiesic/newsrag/storage"
)

const (
	// SnippetLength is the number of body runes shown in a search result.
	SnippetLength = 200

	DefaultNewsLimit = 20
	MaxNewsLimit     = 100

	maxRequestBytes = 1 << 20
)

// Searcher answers hybrid queries.
type Searcher interface {
	Search(ctx context.Context, query search.Query) ([]*search.Result, error)
}

// StatsSource reports store statistics.
type StatsSource interface {
	Stats(ctx context.Context) (*newsrag.Stats, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	searcher Searcher
	docs     storage.DocumentRepository
	stats    StatsSource
	logger   *slog.Logger
}

// NewHandler creates a new API handler. A nil logger uses slog.Default.
func NewHandler(searcher Searcher, docs storage.DocumentRepository, stats StatsSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		searcher: searcher,
		docs:     docs,
		stats:    stats,
		logger:   logger.With("component", "api"),
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", h.healthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Post("/search", h.search)
		r.Get("/stats", h.getStats)
		r.Get("/news", h.listNews)
		r.Get("/news/{id}", h.getNews)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchRequest struct {
	Query    string `json:"query"`
	ImageURL string `json:"imageUrl"`
	Limit    int    `json:"limit"`
}

type searchResult struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Snippet    string   `json:"snippet"`
	Language   string   `json:"language"`
	Date       string   `json:"date"`
	Images     []string `json:"images"`
	Link       string   `json:"link"`
	FusedScore float64  `json:"fusedScore"`
	SimText    float64  `json:"simText"`
	SimImage   float64  `json:"simImage"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
	Total   int            `json:"total"`
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	results, err := h.searcher.Search(r.Context(), search.Query{Text: req.Query, ImageURL: req.ImageURL, Limit: req.Limit})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := searchResponse{Results: make([]searchResult, 0, len(results)), Total: len(results)}
	for _, res := range results {
		doc := res.Document
		resp.Results = append(resp.Results, searchResult{
			ID:         doc.ID,
			Title:      doc.Title,
			Snippet:    Snippet(doc.Body, SnippetLength),
			Language:   doc.Language,
			Date:       formatDate(doc.PublishedAt),
			Images:     nonNil(doc.Images),
			Link:       doc.Link,
			FusedScore: res.Score,
			SimText:    res.SimText,
			SimImage:   res.SimImage,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type newsItem struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Snippet  string   `json:"snippet,omitempty"`
	Content  string   `json:"content,omitempty"`
	Category string   `json:"category"`
	Language string   `json:"language"`
	Date     string   `json:"date"`
	Images   []string `json:"images"`
	Link     string   `json:"link"`
	Authors  []string `json:"authors"`
	Source   string   `json:"source"`
}

type newsResponse struct {
	News  []newsItem `json:"news"`
	Total int        `json:"total"`
	Limit int        `json:"limit"`
	Skip  int        `json:"skip"`
}

func toNewsItem(doc *core.Document) newsItem {
	return newsItem{
		ID:       doc.ID,
		Title:    doc.Title,
		Category: doc.Category,
		Language: doc.Language,
		Date:     formatDate(doc.PublishedAt),
		Images:   nonNil(doc.Images),
		Link:     doc.Link,
		Authors:  nonNil(doc.Authors),
		Source:   doc.Source,
	}
}

func (h *Handler) listNews(w http.ResponseWriter, r *http.Request) {
	filter, err := parseNewsFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	total, err := h.docs.CountDocuments(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	docs, err := h.docs.FindDocuments(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := newsResponse{News: make([]newsItem, 0, len(docs)), Total: total, Limit: filter.Limit, Skip: filter.Skip}
	for _, doc := range docs {
		item := toNewsItem(doc)
		item.Snippet = Snippet(doc.Body, SnippetLength)
		resp.News = append(resp.News, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getNews(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item := toNewsItem(doc)
	item.Content = doc.Body
	writeJSON(w, http.StatusOK, item)
}

// parseNewsFilter reads the listing query parameters.
// Dates are RFC3339 or YYYY-MM-DD; a bare date as upper bound covers the whole day.
func parseNewsFilter(r *http.Request) (storage.DocumentFilter, error) {
	q := r.URL.Query()
	filter := storage.DocumentFilter{
		Language: strings.TrimSpace(q.Get("language")),
		Category: strings.TrimSpace(q.Get("category")),
		Limit:    DefaultNewsLimit,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, core.NewValidationError("limit", "must be a non-negative integer")
		}
		if n > 0 {
			filter.Limit = min(n, MaxNewsLimit)
		}
	}
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, core.NewValidationError("skip", "must be a non-negative integer")
		}
		filter.Skip = n
	}

	var err error
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if filter.From, err = parseDateParam("from", v); err != nil {
			return filter, err
		}
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if filter.To, err = parseDateParam("to", v); err != nil {
			return filter, err
		}
		if _, err := time.Parse(time.DateOnly, v); err == nil {
			filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return filter, nil
}

func parseDateParam(name, v string) (time.Time, error) {
	t, err := ingestion.ParseDate(v)
	if err != nil {
		return time.Time{}, core.NewValidationError(name, "must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

// writeError maps domain errors to status codes. Internal failures are logged
// and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *core.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	case errors.Is(err, core.ErrImageFetch), errors.Is(err, core.ErrImageTooSmall):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, context.Canceled):
		// Client went away
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

// Snippet returns the first n runes of body, with "..." appended when truncated.
func Snippet(body string, n int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n]) + "..."
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
