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

package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/search"
)

// explainMonitor prints every search stage with its elapsed time.
// The two legs report concurrently, so writes are serialised.
type explainMonitor struct {
	mu    sync.Mutex
	w     io.Writer
	start time.Time
}

var _ search.SearchMonitor = (*explainMonitor)(nil)

func newExplainMonitor(w io.Writer) *explainMonitor {
	return &explainMonitor{w: w}
}

func (m *explainMonitor) printf(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.w, "[%8s] ", time.Since(m.start).Round(time.Microsecond))
	fmt.Fprintf(m.w, format, args...)
}

func (m *explainMonitor) printMatches(stage string, matches []core.Match) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.w, "[%8s] %s: %d matches\n", time.Since(m.start).Round(time.Microsecond), stage, len(matches))
	for _, match := range matches {
		if match.ImageURL != "" {
			fmt.Fprintf(m.w, "    %0.4f %s %s\n", match.Score, match.DocumentID, match.ImageURL)
		} else {
			fmt.Fprintf(m.w, "    %0.4f %s\n", match.Score, match.DocumentID)
		}
	}
}

func (m *explainMonitor) Start(query search.Query) {
	m.start = time.Now()
	m.printf("query text=%q image=%q limit=%d\n", query.Text, query.ImageURL, query.Limit)
}

func (m *explainMonitor) AfterTextSearch(matches []core.Match) {
	m.printMatches("text search", matches)
}

func (m *explainMonitor) AfterImageSearch(matches []core.Match) {
	m.printMatches("image search", matches)
}

func (m *explainMonitor) AfterFusion(ranked []search.Ranked) {
	m.printf("fusion: %d documents\n", len(ranked))
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range ranked {
		fmt.Fprintf(m.w, "    %0.4f %s (text=%0.4f image=%0.4f)\n", r.Score, r.DocumentID, r.SimText, r.SimImage)
	}
}

func (m *explainMonitor) AfterDocumentRetrieval(docs []*core.Document) {
	m.printf("retrieved %d documents\n", len(docs))
}

func (m *explainMonitor) Finish(results []*search.Result) {
	m.printf("done: %d results\n", len(results))
}
