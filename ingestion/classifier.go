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

package ingestion

import "strings"

// Classifier assigns a category to an article that arrives without one.
// An empty result leaves the document uncategorised.
type Classifier interface {
	Classify(title, body string) string
}

// CategoryRule maps a category to the keywords that identify it.
type CategoryRule struct {
	Category string
	Keywords []string
}

// KeywordClassifier picks the first rule with a keyword contained in the
// lowercased title and body.
type KeywordClassifier struct {
	rules []CategoryRule
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier creates a classifier over rules, checked in order.
func NewKeywordClassifier(rules ...CategoryRule) *KeywordClassifier {
	normalized := make([]CategoryRule, 0, len(rules))
	for _, rule := range rules {
		keywords := make([]string, 0, len(rule.Keywords))
		for _, k := range rule.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				keywords = append(keywords, k)
			}
		}
		normalized = append(normalized, CategoryRule{Category: rule.Category, Keywords: keywords})
	}
	return &KeywordClassifier{rules: normalized}
}

// NewDefaultClassifier creates a classifier over the newsroom taxonomy.
func NewDefaultClassifier() *KeywordClassifier {
	return NewKeywordClassifier(DefaultTaxonomy()...)
}

// Classify returns the first matching category, or "".
func (c *KeywordClassifier) Classify(title, body string) string {
	text := strings.ToLower(title + " " + body)
	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(text, keyword) {
				return rule.Category
			}
		}
	}
	return ""
}

// DefaultTaxonomy returns the newsroom categories with their English and Spanish keywords.
func DefaultTaxonomy() []CategoryRule {
	return []CategoryRule{
		{Category: "educación", Keywords: []string{"education", "educación", "escuela", "universidad", "estudiante", "aprendizaje"}},
		{Category: "negocios", Keywords: []string{"business", "negocio", "empresa", "startup", "comercio", "emprendimiento"}},
		{Category: "ciencia", Keywords: []string{"science", "ciencia", "investigación", "estudio científico", "descubrimiento"}},
		{Category: "salud", Keywords: []string{"health", "salud", "médico", "hospital", "medicina", "tratamiento"}},
		{Category: "política", Keywords: []string{"politics", "política", "gobierno", "presidente", "elección", "partido político"}},
		{Category: "tecnología", Keywords: []string{"technology", "tecnología", "software", "inteligencia artificial", "smartphone", "internet"}},
		{Category: "deportes", Keywords: []string{"sports", "deporte", "fútbol", "football", "partido de", "campeonato", "olímpic"}},
		{Category: "economía", Keywords: []string{"economy", "economía", "inflación", "inflation", "mercado", "bolsa de valores", "recession"}},
		{Category: "entretenimiento", Keywords: []string{"entertainment", "entretenimiento", "película", "cinema", "música", "serie", "celebrity"}},
		{Category: "internacional", Keywords: []string{"international", "internacional", "naciones unidas", "united nations", "embajada", "frontera"}},
	}
}
