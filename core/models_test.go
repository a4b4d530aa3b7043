package core

import (
	"testing"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "simple content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "url", content: "https://news.example.com/2024/05/article-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.content)
			h2 := ContentHash(tt.content)

			if h1 != h2 {
				t.Errorf("ContentHash() produced different hashes for same content: %s vs %s", h1, h2)
			}
			if len(h1) != 16 {
				t.Errorf("ContentHash() length = %d, want 16", len(h1))
			}
		})
	}
}

func TestDocumentIDFromContent_Different(t *testing.T) {
	id1 := DocumentIDFromContent("https://a.example.com/1")
	id2 := DocumentIDFromContent("https://a.example.com/2")

	if id1 == id2 {
		t.Errorf("DocumentIDFromContent() produced same ID for different content")
	}
	if DocumentIDFromContent("  https://a.example.com/1 ") != id1 {
		t.Errorf("DocumentIDFromContent() should ignore surrounding whitespace")
	}
}

func TestKind_Dimension(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindText, 384},
		{KindImage, 512},
		{Kind("audio"), 0},
	}

	for _, tt := range tests {
		if got := tt.kind.Dimension(); got != tt.want {
			t.Errorf("%q.Dimension() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Image ")
	if err != nil || k != KindImage {
		t.Errorf("ParseKind(\" Image \") = %q, %v", k, err)
	}

	if _, err := ParseKind("video"); err == nil {
		t.Errorf("ParseKind(\"video\") expected error")
	}
}

func TestDocument_EmbeddingText(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
		want string
	}{
		{
			name: "title and body",
			doc:  Document{Title: "Rain in Lima", Body: "Heavy rain expected."},
			want: "Rain in Lima Heavy rain expected.",
		},
		{
			name: "title only",
			doc:  Document{Title: "  Headline  "},
			want: "Headline",
		},
		{
			name: "blank",
			doc:  Document{Title: "   ", Body: "\n\t"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.EmbeddingText(); got != tt.want {
				t.Errorf("EmbeddingText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocument_HasImages(t *testing.T) {
	if (&Document{}).HasImages() {
		t.Errorf("document without images reported HasImages")
	}
	if (&Document{Images: []string{" ", ""}}).HasImages() {
		t.Errorf("blank image references should not count")
	}
	if !(&Document{Images: []string{"https://img.example.com/a.jpg"}}).HasImages() {
		t.Errorf("document with image reported no images")
	}
}

func TestEmbeddingKey_String(t *testing.T) {
	if got := TextKey("doc1").String(); got != "text:doc1" {
		t.Errorf("TextKey().String() = %q", got)
	}
	if got := ImageKey("doc1", "https://x/a.png").String(); got != "image:doc1:https://x/a.png" {
		t.Errorf("ImageKey().String() = %q", got)
	}

	e := &Embedding{DocumentID: "doc1", ImageURL: "https://x/a.png", Kind: KindImage}
	if e.Key() != ImageKey("doc1", "https://x/a.png") {
		t.Errorf("Embedding.Key() = %+v", e.Key())
	}
}
