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


// Package clip provides the image embedding service backed by an HTTP CLIP server.
//
// The server receives a canonical 224x224 image as base64 PNG and answers with
// its raw image features:
//
//	POST {ImageHost}/embed  {"model": "...", "image": "<base64 png>"}
//	200                     {"embedding": [0.1, ...]}
//
// The embedder checks the 512-dimension contract and L2-normalizes the result.
package clip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
)

type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embedder implements ai.ImageEmbedder against a CLIP server.
type Embedder struct {
	endpoint string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

var _ ai.ImageEmbedder = (*Embedder)(nil)

// NewEmbedder creates an image embedder from the image settings of config.
func NewEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		endpoint: config.ImageHost + "/embed",
		model:    config.ImageModel,
		client:   &http.Client{Timeout: config.RequestTimeout},
		logger:   slog.Default().With("component", "clip-embedder"),
	}, nil
}

// Model returns the image model identifier.
func (e *Embedder) Model() string {
	return e.model
}

// EmbedImage encodes img as PNG, sends it to the server and returns the normalized vector.
func (e *Embedder) EmbedImage(ctx context.Context, img image.Image) ([]float32, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, core.ErrEmptyInput
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &core.EmbeddingError{Kind: core.KindImage, Err: fmt.Errorf("encode png: %w", err)}
	}

	body, err := json.Marshal(embedRequest{
		Model: e.model,
		Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
	if err != nil {
		return nil, &core.EmbeddingError{Kind: core.KindImage, Err: err}
	}

	raw, err := e.post(ctx, body)
	if err != nil {
		e.logger.Debug("image embedding failed", "err", err)
		return nil, &core.EmbeddingError{Kind: core.KindImage, Err: err}
	}
	return ai.FinishVector(core.KindImage, raw)
}

func (e *Embedder) post(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %d: %s", ai.ErrUnexpectedStatus, resp.StatusCode, bytes.TrimSpace(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Embedding, nil
}
