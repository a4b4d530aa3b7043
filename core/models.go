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
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

const (
	// TextDimension is the length of every text embedding vector.
	TextDimension = 384
	// ImageDimension is the length of every image embedding vector.
	ImageDimension = 512
)

// ContentHash returns a hex encoded 64-bit BLAKE2b digest of text.
// Identical input always produces the same hash.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// DocumentIDFromContent derives a stable document ID from its canonical content,
// normally the source link.
func DocumentIDFromContent(text string) string {
	return ContentHash(strings.TrimSpace(text))
}

// Kind identifies the modality of an embedding.
type Kind string

const (
	// KindText marks embeddings computed from a document's title and body.
	KindText Kind = "text"
	// KindImage marks embeddings computed from one of a document's images.
	KindImage Kind = "image"
)

// Dimension returns the fixed vector length for the kind, or 0 for unknown kinds.
func (k Kind) Dimension() int {
	switch k {
	case KindText:
		return TextDimension
	case KindImage:
		return ImageDimension
	default:
		return 0
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindText || k == KindImage
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", NewValidationError("kind", "must be text or image")
	}
	return k, nil
}

// Document is a news article.
// Documents are created once at import and are never mutated by embedding or search.
type Document struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Images      []string  `json:"images,omitempty"`
	Category    string    `json:"category,omitempty"`
	Language    string    `json:"language,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Link        string    `json:"link,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Source      string    `json:"source,omitempty"`
	InsertedAt  time.Time `json:"insertedAt"`
}

// EmbeddingText returns the text fed to the text encoder: title and body joined by a space.
// Returns an empty string when both are blank.
func (d *Document) EmbeddingText() string {
	return strings.TrimSpace(strings.TrimSpace(d.Title) + " " + strings.TrimSpace(d.Body))
}

// HasImages reports whether the document references at least one image.
func (d *Document) HasImages() bool {
	for _, img := range d.Images {
		if strings.TrimSpace(img) != "" {
			return true
		}
	}
	return false
}

// EmbeddingKey identifies a single embedding record.
// Text records are unique per document; image records are unique per (document, url).
type EmbeddingKey struct {
	Kind       Kind
	DocumentID string
	ImageURL   string
}

// TextKey returns the key of a document's text embedding.
func TextKey(documentID string) EmbeddingKey {
	return EmbeddingKey{Kind: KindText, DocumentID: documentID}
}

// ImageKey returns the key of the embedding of one image of a document.
func ImageKey(documentID, imageURL string) EmbeddingKey {
	return EmbeddingKey{Kind: KindImage, DocumentID: documentID, ImageURL: imageURL}
}

// String returns a canonical string form, used for hashing and logging.
func (k EmbeddingKey) String() string {
	if k.Kind == KindImage {
		return string(k.Kind) + ":" + k.DocumentID + ":" + k.ImageURL
	}
	return string(k.Kind) + ":" + k.DocumentID
}

// Embedding is a stored vector for one document (text) or one document image (image).
type Embedding struct {
	DocumentID string
	ImageURL   string // Only set for KindImage
	Kind       Kind
	Model      string
	Vector     []float32 // L2-normalized, length == Kind.Dimension()
	CreatedAt  time.Time
}

// Key returns the identity of the record.
func (e *Embedding) Key() EmbeddingKey {
	return EmbeddingKey{Kind: e.Kind, DocumentID: e.DocumentID, ImageURL: e.ImageURL}
}

// Match is a single hit of a vector similarity search.
type Match struct {
	DocumentID string
	ImageURL   string
	Score      float32
}

// Checkpoint summarizes the most recent run of an embedding pass.
// It is informational only; pending work is always derived from stored records.
type Checkpoint struct {
	Pass           string    `json:"pass"`
	Eligible       int       `json:"eligible"`
	Attempted      int       `json:"attempted"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	AlreadyDone    int       `json:"alreadyDone"`
	LastDocumentID string    `json:"lastDocumentId,omitempty"`
	Completed      bool      `json:"completed"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
