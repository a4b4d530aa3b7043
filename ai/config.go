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

package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for AI service providers.
type Config struct {
	// TextHost is the base URL of the OpenAI-compatible text embedding API.
	// Example: "http://localhost:11434/v1"
	TextHost string

	// TextModel is the model identifier to use for text embeddings.
	// It must produce 384-dimensional vectors.
	TextModel string

	// ImageHost is the base URL of the CLIP image embedding server.
	// Example: "http://localhost:9100"
	ImageHost string

	// ImageModel is the model identifier to use for image embeddings.
	// It must produce 512-dimensional vectors.
	ImageModel string

	// RequestTimeout bounds a single call to either service.
	// Default: 30s
	RequestTimeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithTextHost sets the text embedding service host URL.
func WithTextHost(host string) ConfigOption {
	return func(c *Config) {
		c.TextHost = host
	}
}

// WithImageHost sets the image embedding service host URL.
func WithImageHost(host string) ConfigOption {
	return func(c *Config) {
		c.ImageHost = host
	}
}

// WithTextModel sets the text embedding model identifier.
func WithTextModel(model string) ConfigOption {
	return func(c *Config) {
		c.TextModel = model
	}
}

// WithImageModel sets the image embedding model identifier.
func WithImageModel(model string) ConfigOption {
	return func(c *Config) {
		c.ImageModel = model
	}
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// DefaultConfig returns a Config with sensible defaults for local services.
func DefaultConfig() *Config {
	return &Config{
		TextHost:       "http://localhost:11434/v1",
		TextModel:      "all-minilm",
		ImageHost:      "http://localhost:9100",
		ImageModel:     "clip-vit-base-patch32",
		RequestTimeout: 30 * time.Second,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithTextHost("http://localhost:11434"),
//	    WithImageHost("http://clip:9100"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to the text host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc), and strips
// the trailing slash of the image host.
func (c *Config) Normalize() {
	if c.TextHost != "" && !strings.HasSuffix(c.TextHost, "/v1") {
		c.TextHost = strings.TrimSuffix(c.TextHost, "/") + "/v1"
	}
	c.ImageHost = strings.TrimSuffix(c.ImageHost, "/")
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.TextHost == "" {
		return errors.New("ai config: TextHost is required")
	}
	if c.TextModel == "" {
		return errors.New("ai config: TextModel is required")
	}
	if c.ImageHost == "" {
		return errors.New("ai config: ImageHost is required")
	}
	if c.ImageModel == "" {
		return errors.New("ai config: ImageModel is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("ai config: RequestTimeout must not be negative")
	}
	return nil
}
