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

package openai

import (
	"log/slog"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/ai/clip"
)

// Provider implements ai.Provider with an OpenAI-compatible text embedder and
// a CLIP server image embedder.
type Provider struct {
	config        *ai.Config
	textEmbedder  *Embedder
	imageEmbedder ai.ImageEmbedder
	logger        *slog.Logger
}

// NewProvider creates a new AI provider.
// The config is validated and normalized before use.
//
// Returns ai.Provider interface (not *Provider) to enforce abstraction.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	textEmbedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	imageEmbedder, err := clip.NewEmbedder(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:        config,
		textEmbedder:  textEmbedder,
		imageEmbedder: imageEmbedder,
		logger:        slog.Default().With("component", "openai-provider"),
	}, nil
}

// TextEmbedder returns the text embedding service.
func (p *Provider) TextEmbedder() ai.TextEmbedder {
	return p.textEmbedder
}

// ImageEmbedder returns the image embedding service.
func (p *Provider) ImageEmbedder() ai.ImageEmbedder {
	return p.imageEmbedder
}

// Close releases resources held by the provider.
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing provider")
	return nil
}
