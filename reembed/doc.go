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

// Package reembed computes and stores the embeddings of stored documents.
//
// The text pass rebuilds one text record per document from scratch on every
// run. The image pass embeds one record per (document, image url) pair and, in
// resume mode, skips pairs that already have a record, so an interrupted run
// can simply be started again. Item failures are counted in a Report and never
// abort a pass; progress is written through a ProgressTracker.
package reembed
