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

package search

import "github.com/poiesic/newsrag/core"

// Implement this interface to track intermediate steps and results during search.
// Callbacks run on the goroutine that called Search, one at a time.
type SearchMonitor interface {
	Start(query Query)
	AfterTextSearch(matches []core.Match)
	AfterImageSearch(matches []core.Match)
	AfterFusion(ranked []Ranked)
	AfterDocumentRetrieval(docs []*core.Document)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Query)                            {}
func (n *noopMonitor) AfterTextSearch(_ []core.Match)           {}
func (n *noopMonitor) AfterImageSearch(_ []core.Match)          {}
func (n *noopMonitor) AfterFusion(_ []Ranked)                   {}
func (n *noopMonitor) AfterDocumentRetrieval(_ []*core.Document) {}
func (n *noopMonitor) Finish(_ []*Result)                       {}
