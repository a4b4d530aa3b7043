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

// Package ingestion loads crawler output into the document store.
//
// An Importer reads articles as a JSON array or as JSON lines, trims them,
// classifies the ones that arrive without a category and inserts them as
// documents. Articles whose link or id is already stored are counted as
// duplicates. Optionally the text of each imported batch is embedded on a
// worker pool so new documents are searchable without a separate pass.
package ingestion
