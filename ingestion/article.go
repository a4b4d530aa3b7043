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

package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/newsrag/core"
)

// Article is one news item as delivered by the crawler.
type Article struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Content     string   `json:"content,omitempty"`
	Description string   `json:"description,omitempty"` // Used when Content is empty
	Images      []string `json:"images,omitempty"`
	Category    string   `json:"category,omitempty"`
	Language    string   `json:"language,omitempty"`
	PublishedAt string   `json:"publishedAt,omitempty"`
	Link        string   `json:"link,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Source      string   `json:"source,omitempty"`
}

// Accepted PublishedAt layouts, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseDate parses a publication date in any accepted layout. Values without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, core.NewValidationError("publishedAt", fmt.Sprintf("unrecognised date %q", s))
}

// toDocument trims the article and converts it into a document.
// A missing date falls back to now; a missing category is left to classifier.
func (a *Article) toDocument(classifier Classifier, now time.Time) (*core.Document, error) {
	title := strings.TrimSpace(a.Title)
	body := strings.TrimSpace(a.Content)
	if body == "" {
		body = strings.TrimSpace(a.Description)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArticle, core.NewValidationError("title", "must not be empty"))
	}
	if body == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArticle, core.NewValidationError("content", "must not be empty"))
	}

	published := now.UTC()
	if strings.TrimSpace(a.PublishedAt) != "" {
		var err error
		published, err = ParseDate(a.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidArticle, err)
		}
	}

	link := strings.TrimSpace(a.Link)
	id := strings.TrimSpace(a.ID)
	if id == "" {
		if link != "" {
			id = core.DocumentIDFromContent(link)
		} else {
			id = core.DocumentIDFromContent(title)
		}
	}

	category := strings.TrimSpace(a.Category)
	if category == "" && classifier != nil {
		category = classifier.Classify(title, body)
	}

	return &core.Document{
		ID:          id,
		Title:       title,
		Body:        body,
		Images:      compact(a.Images),
		Category:    category,
		Language:    strings.TrimSpace(a.Language),
		PublishedAt: published,
		Link:        link,
		Authors:     compact(a.Authors),
		Source:      strings.TrimSpace(a.Source),
	}, nil
}

// compact trims values and drops blanks. Returns nil when nothing is left.
func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
