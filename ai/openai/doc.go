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

// Package openai provides the text embedding service over OpenAI-compatible APIs.
//
// The embedder uses the langchaingo library to talk to OpenAI or compatible
// servers (Ollama, LocalAI, vLLM, text-embeddings-inference). The configured
// model must produce 384-dimensional vectors; responses of any other length
// fail with *core.DimensionMismatchError.
//
// NewProvider pairs the text embedder with the CLIP image embedder from
// ai/clip so callers get both encoders from one configuration.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithTextHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithTextModel("all-minilm"),
//	)
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.TextEmbedder().EmbedText(ctx, "elecciones presidenciales")
package openai
