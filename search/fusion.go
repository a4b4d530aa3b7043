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

import (
	"fmt"
	"math"
	"sort"

	"github.com/poiesic/newsrag/core"
)

// scorePrecision is the number of decimal places fused scores are rounded to,
// so sums that differ only by floating point error rank as ties.
const scorePrecision = 1e6

// Weights scales each modality's similarity before summation.
// They are applied as given and need not sum to 1.
type Weights struct {
	Text  float64
	Image float64
}

// DefaultWeights favours text over image similarity.
func DefaultWeights() Weights {
	return Weights{Text: 0.6, Image: 0.4}
}

// Ranked is one document in a fused result list.
// A modality that did not return the document contributes 0 to Score and its Sim field.
type Ranked struct {
	DocumentID string
	Score      float64
	SimText    float64
	SimImage   float64
}

// Fuse merges per-modality matches into a single ranking keyed by document.
// Each document's score is SimText*w.Text + SimImage*w.Image. Documents keep
// first-seen order (text results first) as the tie-break. A document listed
// twice within one modality is rejected; use BestPerDocument to collapse
// per-record matches first.
func Fuse(text, image []core.Match, w Weights, topK int) ([]Ranked, error) {
	if topK <= 0 {
		return []Ranked{}, nil
	}

	ranked := make([]*Ranked, 0, len(text)+len(image))
	byDoc := make(map[string]*Ranked, len(text)+len(image))
	entry := func(id string) *Ranked {
		if r, ok := byDoc[id]; ok {
			return r
		}
		r := &Ranked{DocumentID: id}
		byDoc[id] = r
		ranked = append(ranked, r)
		return r
	}

	seen := make(map[string]bool, len(text))
	for _, m := range text {
		if seen[m.DocumentID] {
			return nil, core.NewValidationError("text", fmt.Sprintf("document %s listed more than once", m.DocumentID))
		}
		seen[m.DocumentID] = true
		r := entry(m.DocumentID)
		r.SimText = float64(m.Score)
		r.Score += float64(m.Score) * w.Text
	}

	clear(seen)
	for _, m := range image {
		if seen[m.DocumentID] {
			return nil, core.NewValidationError("image", fmt.Sprintf("document %s listed more than once", m.DocumentID))
		}
		seen[m.DocumentID] = true
		r := entry(m.DocumentID)
		r.SimImage = float64(m.Score)
		r.Score += float64(m.Score) * w.Image
	}

	results := make([]Ranked, len(ranked))
	for i, r := range ranked {
		r.Score = math.Round(r.Score*scorePrecision) / scorePrecision
		results[i] = *r
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// BestPerDocument keeps the first match of each document, preserving order.
// On a list sorted by descending score that is each document's best match.
func BestPerDocument(matches []core.Match) []core.Match {
	seen := make(map[string]bool, len(matches))
	best := make([]core.Match, 0, len(matches))
	for _, m := range matches {
		if seen[m.DocumentID] {
			continue
		}
		seen[m.DocumentID] = true
		best = append(best, m)
	}
	return best
}
