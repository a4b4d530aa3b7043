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
	"math"

	"github.com/poiesic/newsrag/core"
)

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	return math.Sqrt(sumSquares)
}

// NormalizeVector scales a vector to unit length.
// Returns a new vector. A zero-norm vector is returned unchanged.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	magnitude := Norm(v)
	if magnitude == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// FinishVector checks an encoder output against kind's dimension and normalizes it.
func FinishVector(kind core.Kind, v []float32) ([]float32, error) {
	if err := core.CheckDimension(kind, v); err != nil {
		return nil, err
	}
	return NormalizeVector(v), nil
}
