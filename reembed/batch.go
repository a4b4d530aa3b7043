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

package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
)

// TextBatchProcessor embeds the text of a batch of documents.
type TextBatchProcessor struct {
	embedder       ai.TextEmbedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewTextBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each encoder call
// retryBaseDelay: base delay for exponential backoff
func NewTextBatchProcessor(embedder ai.TextEmbedder, maxRetries int, retryBaseDelay time.Duration) *TextBatchProcessor {
	return &TextBatchProcessor{
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process returns one normalised text record per document, in order.
// Every document must have non-blank EmbeddingText. The whole batch fails together.
func (bp *TextBatchProcessor) Process(ctx context.Context, docs []*core.Document) ([]*core.Embedding, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.EmbeddingText()
	}

	var vectors [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrCountMismatch, len(docs), len(vectors))
	}

	model := bp.embedder.Model()
	records := make([]*core.Embedding, len(docs))
	for i, doc := range docs {
		vector, err := ai.FinishVector(core.KindText, vectors[i])
		if err != nil {
			return nil, err
		}
		records[i] = &core.Embedding{
			DocumentID: doc.ID,
			Kind:       core.KindText,
			Model:      model,
			Vector:     vector,
		}
	}
	return records, nil
}
