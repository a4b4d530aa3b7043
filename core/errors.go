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
	"errors"
	"fmt"
)

// Domain errors
var (
	// ErrEmptyInput indicates text embedding was requested for blank text.
	// It means "no embedding" and is never fatal.
	ErrEmptyInput = errors.New("empty input")

	// ErrImageFetch indicates an image could not be downloaded or decoded.
	ErrImageFetch = errors.New("image fetch failed")

	// ErrImageTooSmall indicates a downloaded image payload was below the minimum size.
	ErrImageTooSmall = errors.New("image payload too small")

	// ErrEmbedding indicates an encoder rejected its input.
	ErrEmbedding = errors.New("embedding failed")

	// ErrDimensionMismatch indicates a vector length disagrees with its kind.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrValidation indicates malformed input rejected before reaching retrieval.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")
)

// ImageFetchError is returned once every attempt to fetch an image has failed.
// Err holds the cause of the last attempt.
type ImageFetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *ImageFetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *ImageFetchError) Unwrap() error { return e.Err }

func (e *ImageFetchError) Is(target error) bool { return target == ErrImageFetch }

// EmbeddingError is returned when an encoder cannot process its input.
type EmbeddingError struct {
	Kind Kind
	Err  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s embedding: %v", e.Kind, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }

// DimensionMismatchError reports a vector whose length differs from the expected one.
type DimensionMismatchError struct {
	Kind     Kind
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s vector has dimension %d, expected %d", e.Kind, e.Actual, e.Expected)
}

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrDimensionMismatch }

// ValidationError reports malformed input on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
