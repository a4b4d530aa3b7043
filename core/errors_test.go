package core

import (
	"errors"
	"io"
	"testing"
)

func TestImageFetchError(t *testing.T) {
	err := error(&ImageFetchError{URL: "https://x/a.jpg", Attempts: 3, Err: io.ErrUnexpectedEOF})

	if !errors.Is(err, ErrImageFetch) {
		t.Errorf("ImageFetchError should match ErrImageFetch")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ImageFetchError should unwrap to its last cause")
	}
	if errors.Is(err, ErrEmbedding) {
		t.Errorf("ImageFetchError should not match ErrEmbedding")
	}
}

func TestEmbeddingError(t *testing.T) {
	cause := errors.New("encoder rejected input")
	err := error(&EmbeddingError{Kind: KindImage, Err: cause})

	if !errors.Is(err, ErrEmbedding) || !errors.Is(err, cause) {
		t.Errorf("EmbeddingError should match ErrEmbedding and its cause")
	}
	if err.Error() != "image embedding: encoder rejected input" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidationError_Message(t *testing.T) {
	if got := NewValidationError("limit", "must not be negative").Error(); got != "limit: must not be negative" {
		t.Errorf("unexpected message %q", got)
	}
	if got := NewValidationError("", "query or imageUrl is required").Error(); got != "query or imageUrl is required" {
		t.Errorf("unexpected message %q", got)
	}
}
