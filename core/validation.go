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

package core

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Title must not be blank
//   - Body must not be blank
//
// NOT validated:
//   - Images (individual references are checked by the image pass)
//   - Category and Language (optional)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, NewValidationError("id", "must not be empty"))
	}
	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, NewValidationError("title", "must not be empty"))
	}
	if strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, NewValidationError("body", "must not be empty"))
	}
	return nil
}

// ValidateEmbedding validates an Embedding before it is persisted.
//
// Validation rules:
//   - Kind must be text or image
//   - DocumentID must not be empty
//   - ImageURL must be set for image records and empty for text records
//   - Vector length must equal Kind.Dimension()
func ValidateEmbedding(e *Embedding) error {
	if e == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, NewValidationError("kind", fmt.Sprintf("unknown kind %q", e.Kind)))
	}
	if e.DocumentID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, NewValidationError("documentId", "must not be empty"))
	}
	if e.Kind == KindImage && e.ImageURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, NewValidationError("imageUrl", "required for image embeddings"))
	}
	if e.Kind == KindText && e.ImageURL != "" {
		return fmt.Errorf("%w: %w", ErrInvalidEmbedding, NewValidationError("imageUrl", "not allowed for text embeddings"))
	}
	return CheckDimension(e.Kind, e.Vector)
}

// CheckDimension returns a *DimensionMismatchError when len(vector) differs from kind's dimension.
func CheckDimension(kind Kind, vector []float32) error {
	if expected := kind.Dimension(); len(vector) != expected {
		return &DimensionMismatchError{Kind: kind, Expected: expected, Actual: len(vector)}
	}
	return nil
}

// ValidateImageURL checks that ref is an absolute http(s) URL with a host.
func ValidateImageURL(ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return NewValidationError("imageUrl", "must not be empty")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return NewValidationError("imageUrl", "not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("imageUrl", "must be an absolute http(s) URL")
	}
	if u.Host == "" {
		return NewValidationError("imageUrl", "missing host")
	}
	return nil
}
