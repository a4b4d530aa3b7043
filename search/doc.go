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

// Package search ranks stored documents against text and image queries.
//
// Engine scores every stored embedding of one kind against a query vector
// with true cosine similarity. Fuse merges the per-modality match lists into
// one ranking by weighted summation keyed by document. Searcher ties the two
// together: it embeds the query text and the query image concurrently,
// searches both kinds, fuses the results and hydrates the documents.
package search
